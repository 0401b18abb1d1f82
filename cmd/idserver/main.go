package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	idcmd "github.com/silvermint/idserver/internal/cmd/idserver"
)

func main() {
	flags, err := idcmd.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[IDSERVER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := idcmd.Run(ctx, flags); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
