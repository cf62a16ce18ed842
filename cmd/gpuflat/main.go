// Command gpuflat lowers nested parallel loops in CUE kernels to GPU launches.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/gpuflat/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		cli.ReportUnhandled(os.Stderr, err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
