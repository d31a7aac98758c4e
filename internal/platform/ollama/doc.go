// Package ollama implements the line translator used by translation tasks
// on top of a local Ollama server, typically running a Sakura subtitle
// model.
//
// Lines are sent one per row and the model must answer with the same
// number of rows.
package ollama
