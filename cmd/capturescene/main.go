// Package main is the capturescene command.
package main

import (
	"os"

	"github.com/capturescene/capturescene/cli"
	"github.com/capturescene/capturescene/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}
