package subcmds

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/heroku"
	"github.com/vcnkl/enops/logger"
)

func ConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Read or write the environment's Heroku config vars",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print config vars (all, or just the named keys)",
				ArgsUsage: "[keys...]",
				Action:    configGetAction,
			},
			{
				Name:      "set",
				Usage:     "Set config vars; KEY= (empty value) unsets",
				ArgsUsage: "KEY=VALUE...",
				Action:    configSetAction,
			},
		},
	}
}

func herokuApp(ctx *cli.Context) (string, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return "", err
	}
	_, env, err := requireEnv(ctx, cfg)
	if err != nil {
		return "", err
	}
	if env.HerokuApp == "" {
		return "", errors.New("environment has no heroku_app configured")
	}
	return env.HerokuApp, nil
}

func configGetAction(ctx *cli.Context) error {
	app, err := herokuApp(ctx)
	if err != nil {
		return exitErr(err)
	}

	vars, err := heroku.NewClient("").ConfigVars(ctx.Context, app)
	if err != nil {
		return exitErr(err)
	}

	keys := ctx.Args().Slice()
	if len(keys) == 0 {
		for key := range vars {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}
	for _, key := range keys {
		value, ok := vars[key]
		if !ok {
			return cli.Exit(fmt.Sprintf("error: %s is not set on %s", key, app), 1)
		}
		fmt.Fprintf(ctx.App.Writer, "%s=%s\n", key, value)
	}
	return nil
}

func configSetAction(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return cli.Exit("error: at least one KEY=VALUE required", 1)
	}

	updates := make(map[string]*string, ctx.Args().Len())
	for _, arg := range ctx.Args().Slice() {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return cli.Exit(fmt.Sprintf("error: %q is not KEY=VALUE", arg), 1)
		}
		if value == "" {
			updates[key] = nil
			continue
		}
		v := value
		updates[key] = &v
	}

	app, err := herokuApp(ctx)
	if err != nil {
		return exitErr(err)
	}

	if _, err := heroku.NewClient("").SetConfigVars(ctx.Context, app, updates); err != nil {
		return exitErr(err)
	}

	log := newLogger(ctx)
	for key := range updates {
		action := "set"
		if updates[key] == nil {
			action = "unset"
		}
		log.Info("config var "+action, logger.String("key", key), logger.String("app", app))
	}
	return nil
}
