package main

import (
	"go-hangar/cmd/hangar/cmd"
	"go-hangar/internal/api"
)

func main() {
	// Ensure all API log file buffers are flushed and files closed on exit
	defer api.CloseAllLoggingTransports()

	cmd.Execute()
}
