package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	modhostcmd "github.com/louisbranch/rengine/internal/cmd/modhost"
	"github.com/louisbranch/rengine/internal/platform/config"
)

func main() {
	cfg, err := modhostcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[MODHOST] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := modhostcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}
