/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/seckatie/waybackpack/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
