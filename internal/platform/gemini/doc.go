// Package gemini implements the line translator used by translation tasks
// on top of Google's Gemini API.
//
// Lines are sent as a numbered list and the model is asked to answer with
// the same numbering, so each translation can be matched back to its
// source line. Transient API failures are retried with exponential backoff
// and jitter; malformed or blocked responses are not.
package gemini
