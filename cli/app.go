// Package cli contains the capturescene command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"github.com/capturescene/capturescene/scene"
)

const (
	flagConfig      = "config"
	flagDebug       = "debug"
	flagFilter      = "filter"
	flagReconstruct = "reconstruct"
	flagMeshOut     = "mesh-out"
	flagCloudOut    = "cloud-out"
	flagJournal     = "journal"
	flagLimit       = "limit"
)

var app = &cli.App{
	Name:            "capturescene",
	Usage:           "capture point clouds and reconstruct meshes from them",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API until interrupted",
			Action: ServeAction,
		},
		{
			Name:      "capture",
			Usage:     "capture one point cloud, optionally filter and reconstruct it, and export the results",
			UsageText: "capturescene capture [--filter OP]... [--reconstruct METHOD] [--cloud-out FILE] [--mesh-out FILE]",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:  flagFilter,
					Usage: "apply the filter `OP` after capturing, in order given; one of " + joinOps(scene.FilterOps),
				},
				&cli.StringFlag{
					Name:  flagReconstruct,
					Usage: "reconstruct a mesh with `METHOD`; one of " + joinOps(scene.Methods),
				},
				&cli.StringFlag{
					Name:  flagCloudOut,
					Usage: "write the point cloud to `FILE` (.pcd, .las or .ply)",
				},
				&cli.StringFlag{
					Name:  flagMeshOut,
					Usage: "write the mesh to `FILE` (.ply)",
				},
			},
			Action: CaptureAction,
		},
		{
			Name:      "inspect",
			Usage:     "summarize point cloud and mesh files or the operation journal",
			ArgsUsage: "[FILE...]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagJournal,
					Usage: "list recent operations from the journal at `PATH`",
				},
				&cli.IntFlag{
					Name:  flagLimit,
					Value: 20,
					Usage: "number of journal entries to list",
				},
			},
			Action: InspectAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
