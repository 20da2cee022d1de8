package subcmds

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/heroku"
	"github.com/vcnkl/enops/logger"
	"github.com/vcnkl/enops/pg"
)

func PgRestoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "pg-restore",
		Usage:     "Restore a dump into the environment's database",
		ArgsUsage: "<dump-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Database URL (default: the Heroku app's DATABASE_URL)",
			},
		},
		Action: pgRestoreAction,
	}
}

func pgRestoreAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return cli.Exit("error: exactly one dump file required", 1)
	}
	dumpPath := ctx.Args().First()
	log := newLogger(ctx)

	dbURL := ctx.String("url")
	if dbURL == "" {
		app, err := herokuApp(ctx)
		if err != nil {
			return exitErr(err)
		}
		vars, err := heroku.NewClient("").ConfigVars(ctx.Context, app)
		if err != nil {
			return exitErr(err)
		}
		dbURL = vars["DATABASE_URL"]
		if dbURL == "" {
			return exitErr(errors.Errorf("%s has no DATABASE_URL", app))
		}
	}

	opts := pg.Options{Log: log}
	if err := pg.DropConnections(ctx.Context, dbURL, opts); err != nil {
		log.Warn("could not drop connections", logger.Err(err))
	}
	if err := pg.Restore(ctx.Context, dbURL, dumpPath, opts); err != nil {
		return exitErr(err)
	}

	log.Info("restore complete", logger.String("dump", dumpPath))
	return nil
}
