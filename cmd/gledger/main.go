package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordian-engine/gledger/internal/lgcmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := lgcmd.NewRootCmd(nil).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
