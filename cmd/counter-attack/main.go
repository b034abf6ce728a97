package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/onein50million/counter-attack/internal/app"
	"github.com/onein50million/counter-attack/internal/config"
)

func main() {
	env, err := config.ParseEnv()
	if err != nil {
		log.Fatalf("%v", err)
	}
	args, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{Env: env, Args: args, Stdin: os.Stdin}); err != nil {
		log.Fatalf("%v", err)
	}
}
