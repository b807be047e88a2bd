package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	osusudcmd "github.com/osusu/osusu/internal/cmd/osusud"
)

// main starts the circle service daemon.
func main() {
	cfg, err := osusudcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[OSUSUD] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := osusudcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
