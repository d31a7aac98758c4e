package gemini

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/voicetransl/voicetransl-api/internal/processing"
)

var promptTemplate = template.Must(template.New("translate").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(
		`You are translating subtitles of an anime or game from {{.Source}} to {{.Target}}.
Translate every numbered line below. Keep the tone natural for spoken dialogue.
Answer with exactly {{len .Lines}} lines, each starting with the same number
followed by a period and a space, and nothing else.

{{range $i, $line := .Lines}}{{inc $i}}. {{$line}}
{{end}}`))

type promptData struct {
	Source string
	Target string
	Lines  []string
}

// buildPrompt renders the numbered translation prompt. Newlines inside a
// line are flattened so numbering stays one line per entry.
func buildPrompt(lines []string, source, target string) (string, error) {
	flat := make([]string, len(lines))
	for i, l := range lines {
		flat[i] = strings.Join(strings.Fields(l), " ")
	}

	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, promptData{
		Source: processing.LanguageName(source),
		Target: processing.LanguageName(target),
		Lines:  flat,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)\s*[.:)、]\s*(.*)$`)

// parseNumbered maps a numbered answer back to want input lines.
func parseNumbered(text string, want int) ([]string, error) {
	out := make([]string, want)
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > want || out[n-1] != "" {
			continue
		}
		out[n-1] = strings.TrimSpace(m[2])
		if out[n-1] != "" {
			seen++
		}
	}
	if seen != want {
		return nil, fmt.Errorf("%w: got %d of %d numbered lines", ErrInvalidResponse, seen, want)
	}
	return out, nil
}
