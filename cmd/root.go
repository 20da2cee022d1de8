package cmd

import (
	"github.com/vcnkl/enops/cmd/subcmds"

	"github.com/urfave/cli/v2"
)

func NewApp() *cli.App {
	return &cli.App{
		Name:    "enops",
		Usage:   "Operations CLI: remote exec with tarball bootstrap, multi-host SSH fan-out, Heroku and Postgres plumbing",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to deploy.yml (default: auto-detect via git root)",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Target environment",
			},
		},
		Commands: []*cli.Command{
			subcmds.RunCmd(),
			subcmds.SSHCmd(),
			subcmds.ConfigCmd(),
			subcmds.ScaleCmd(),
			subcmds.PsCmd(),
			subcmds.PgRestoreCmd(),
			subcmds.CredsCmd(),
		},
	}
}
