package processing

import "github.com/voicetransl/voicetransl-api/internal/task"

// Progress is the part of a running task a unit talks to.
// *task.Handle satisfies it.
type Progress interface {
	Input() task.Payload
	SetProgress(pct float64, step string)
}

func stringInput(in task.Payload, key string) string {
	s, _ := in[key].(string)
	return s
}
