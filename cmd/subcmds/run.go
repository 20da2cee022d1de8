package subcmds

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/archive"
	"github.com/vcnkl/enops/bootstrap"
	"github.com/vcnkl/enops/inventory"
	"github.com/vcnkl/enops/runner"
)

func RunCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a command locally, on a one-off Heroku dyno, or on a host, optionally uploading files first",
		ArgsUsage: "<command...>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "log",
				Usage: "Logged mode: line-oriented output to the log instead of an interactive terminal",
			},
			&cli.StringSliceFlag{
				Name:    "upload",
				Aliases: []string{"u"},
				Usage:   "File to bundle into the bootstrap upload (repeatable)",
			},
			&cli.StringFlag{
				Name:  "extract-dir",
				Usage: "Remote directory to unpack the upload into",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Remote working directory for the command (~ allowed)",
			},
			&cli.BoolFlag{
				Name:  "heroku",
				Usage: "Run on a one-off dyno of the environment's Heroku app",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Run on a configured host (id or env/id) over ssh",
			},
		},
		Action: runAction,
	}
}

func runAction(ctx *cli.Context) error {
	command := strings.Join(ctx.Args().Slice(), " ")
	if command == "" {
		return cli.Exit("error: command required", 1)
	}

	payload, err := buildPayload(ctx.StringSlice("upload"))
	if err != nil {
		return exitErr(err)
	}

	script := bootstrap.Script{
		Payload:    payload,
		ExtractDir: ctx.String("extract-dir"),
		WorkDir:    ctx.String("dir"),
		Command:    command,
	}

	platform, err := selectPlatform(ctx)
	if err != nil {
		return exitErr(err)
	}

	opts := runner.Options{
		Platform: platform,
		Script:   script,
		Policy:   runner.FailReturn,
	}
	if ctx.Bool("log") {
		opts.Log = newLogger(ctx)
	}

	if err := runner.New(opts).Run(ctx.Context); err != nil {
		var exit *runner.ExitError
		if errors.As(err, &exit) {
			return cli.Exit(err.Error(), exit.Code)
		}
		return exitErr(err)
	}
	return nil
}

func buildPayload(uploads []string) ([]byte, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	b := archive.New()
	for _, src := range uploads {
		if err := b.AddFile(filepath.Base(src), src); err != nil {
			return nil, err
		}
	}
	return b.Bytes()
}

func selectPlatform(ctx *cli.Context) (runner.Platform, error) {
	heroku := ctx.Bool("heroku")
	hostRef := ctx.String("host")

	switch {
	case heroku && hostRef != "":
		return nil, errors.New("--heroku and --host are mutually exclusive")
	case heroku:
		cfg, err := loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		_, env, err := requireEnv(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if env.HerokuApp == "" {
			return nil, errors.New("environment has no heroku_app configured")
		}
		return runner.Heroku{App: env.HerokuApp}, nil
	case hostRef != "":
		cfg, err := loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		host, err := inventory.NewStatic(cfg.Hosts()).ByID(hostRef)
		if err != nil {
			return nil, err
		}
		keyPath, err := keyResolver(cfg).Resolve(host.KeyName)
		if err != nil {
			return nil, err
		}
		return runner.SSH{
			Host:        host,
			BastionAddr: cfg.Bastion.Addr,
			BastionUser: cfg.Bastion.User,
			KeyPath:     keyPath,
		}, nil
	default:
		return runner.Local{}, nil
	}
}
