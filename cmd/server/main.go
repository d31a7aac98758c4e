// Package main implements the entry point for the voicetransl API server,
// which accepts transcription and translation jobs, runs them under a
// bounded concurrency budget and serves their status and results.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
