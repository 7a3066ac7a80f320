package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqlmind/sqlmind/internal/cli/sqlmindctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := sqlmindctl.Run(ctx, os.Args[1:], sqlmindctl.Options{
		BaseURL: os.Getenv("SQLMIND_CTL_BASE_URL"),
		APIKey:  os.Getenv("SQLMIND_CTL_API_KEY"),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
	os.Exit(code)
}
