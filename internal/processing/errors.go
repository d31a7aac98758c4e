package processing

import "errors"

var (
	// ErrNoEntries is returned when input or backend output has no timed lines.
	ErrNoEntries = errors.New("no valid timed entries found")

	// ErrBackendNotConfigured is returned when a unit runs without the
	// backend it needs.
	ErrBackendNotConfigured = errors.New("backend not configured")

	// ErrNoAudioInput is returned when a transcription task has neither an
	// uploaded file nor a URL.
	ErrNoAudioInput = errors.New("no audio input provided")

	// ErrUnsupportedFormat is returned for an unknown output format.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)
