package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stevemurr/story-sync/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
