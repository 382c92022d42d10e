// Package main runs the metas operator command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/metas/internal/cmd/metasctl"
)

func main() {
	cfg, err := metasctl.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metasctl.Execute(ctx, cfg, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "metasctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
