package main

import (
	"os"

	"dispatch/internal/logger"
)

func main() {
	if err := Execute(); err != nil {
		logger.New("main").Errorf("%v", err)
		os.Exit(1)
	}
}
