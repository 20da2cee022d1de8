package subcmds

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/config"
	"github.com/vcnkl/enops/gateway"
	"github.com/vcnkl/enops/logger"
)

func newLogger(ctx *cli.Context) logger.Logger {
	level := logger.InfoLevel
	if ctx.Bool("debug") {
		level = logger.DebugLevel
	}
	return logger.New(level, os.Stderr)
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")
	if path == "" {
		path = config.Locate()
	}
	return config.Load(path)
}

// requireEnv resolves --env, defaulting to the only environment when
// the config declares exactly one.
func requireEnv(ctx *cli.Context, cfg *config.Config) (string, config.Environment, error) {
	name := ctx.String("env")
	if name == "" && len(cfg.Environments) == 1 {
		name = cfg.EnvironmentNames()[0]
	}
	if name == "" {
		return "", config.Environment{}, cli.Exit("error: select an environment with --env", 1)
	}
	env, err := cfg.Environment(name)
	if err != nil {
		return "", config.Environment{}, cli.Exit("error: "+err.Error(), 1)
	}
	return name, env, nil
}

func keyResolver(cfg *config.Config) *gateway.KeyResolver {
	return gateway.NewKeyResolver(cfg.KeyDirs, cfg.Keys)
}

func exitErr(err error) error {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return err
	}
	return cli.Exit("error: "+err.Error(), 1)
}
