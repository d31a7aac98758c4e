// Package asr talks to an OpenAI-compatible speech-to-text service and
// downloads remote media for transcription.
package asr
