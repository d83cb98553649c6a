package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	modcatalogcmd "github.com/louisbranch/rengine/internal/cmd/modcatalog"
	"github.com/louisbranch/rengine/internal/platform/config"
)

func main() {
	cfg, err := modcatalogcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[MODCATALOG] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := modcatalogcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to export: %v", err)
	}
}
