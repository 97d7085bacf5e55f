// Command rtdemo exercises the raytrace library on the software device.
package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/gogpu/raytrace"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "rtdemo"
	app.Usage = "build acceleration structures and shader binding tables"
	app.Version = raytrace.Version
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable debug logging",
		},
		cli.BoolFlag{
			Name:  "debug-idle",
			Usage: "wait for device idle after every build",
		},
	}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		{
			Name:  "triangle",
			Usage: "build one triangle into a BLAS and one instance of it into a TLAS",
			Description: `
Upload a single triangle with uint16 indices, build it into a bottom-level
acceleration structure, then build a top-level structure holding one identity
instance of it. Both device addresses are printed.`,
			Action: runTriangle,
		},
		{
			Name:  "sbt",
			Usage: "lay out a shader binding table for a stub pipeline",
			Description: `
Create a software device with the given handle size and base alignment, build
a pipeline with one raygen stage, the requested number of miss stages and
triangle hit groups, then pack its handles into a shader binding table.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "handle-size",
					Value: 32,
					Usage: "shader group handle size in bytes",
				},
				cli.IntFlag{
					Name:  "base-alignment",
					Value: 64,
					Usage: "shader group base alignment in bytes",
				},
				cli.IntFlag{
					Name:  "max-stride",
					Value: 4096,
					Usage: "maximum shader group stride in bytes",
				},
				cli.IntFlag{
					Name:  "miss",
					Value: 1,
					Usage: "number of miss stages",
				},
				cli.IntFlag{
					Name:  "hit",
					Value: 3,
					Usage: "number of hit groups",
				},
				cli.StringFlag{
					Name:  "order",
					Usage: "comma separated hit group order, e.g. 2,0,1",
				},
			},
			Action: runSBT,
		},
		{
			Name:  "batch",
			Usage: "build many BLASes concurrently and one TLAS over them",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "count, n",
					Value: 16,
					Usage: "number of bottom-level structures",
				},
				cli.IntFlag{
					Name:  "workers, w",
					Value: 4,
					Usage: "maximum concurrent builds",
				},
			},
			Action: runBatch,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("rtdemo failed", "err", err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	level := slog.LevelInfo
	if ctx.GlobalBool("v") {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	raytrace.SetLogger(l)
	return nil
}
