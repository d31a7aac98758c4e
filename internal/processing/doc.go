// Package processing implements the work units executed by the task
// manager: audio transcription into timed lyrics and batch translation of
// LRC content. Speech recognition, media download and machine translation
// are reached through narrow interfaces so units can run against any
// backend.
package processing
