// Package task manages background job creation, bounded concurrent
// execution, and lifecycle tracking. It lets long-running transcription and
// translation work run without blocking HTTP request handling, while callers
// poll status and results by task id and may cancel work in flight.
package task
