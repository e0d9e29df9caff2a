package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/andreyvit/stablestore/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Reported {
			fmt.Fprintf(os.Stderr, "agroledger: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
