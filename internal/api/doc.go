// Package api handles incoming HTTP requests, request validation and
// response formatting. It adapts HTTP calls to task manager operations:
// creating transcription and translation tasks, polling their status and
// results, cancelling them and reporting service statistics. The same
// translation and task operations are also offered as MCP tools.
package api
