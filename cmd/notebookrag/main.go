// Package main provides the entry point for the notebookrag CLI.
package main

import (
	"os"

	"notebook-rag/cmd/notebookrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
