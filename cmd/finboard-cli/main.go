package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"finboard/internal/cli"
	"finboard/internal/config"
)

func main() {
	cli.LoadEnvFile()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Env{Config: config.Load()})
	stop()
	os.Exit(code)
}
