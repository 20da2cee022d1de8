package subcmds

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/bootstrap"
	"github.com/vcnkl/enops/config"
	"github.com/vcnkl/enops/fanout"
	"github.com/vcnkl/enops/gateway"
	"github.com/vcnkl/enops/inventory"
	"github.com/vcnkl/enops/models"
	"github.com/vcnkl/enops/runner"
)

func SSHCmd() *cli.Command {
	return &cli.Command{
		Name:      "ssh",
		Usage:     "Open an interactive shell on one host, or fan a command out over many",
		ArgsUsage: "[command...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "hosts",
				Aliases: []string{"H"},
				Usage:   "Host references (id or env/id); default: every host in --env",
			},
		},
		Action: sshAction,
	}
}

func sshAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitErr(err)
	}

	hosts, err := selectHosts(ctx, cfg)
	if err != nil {
		return exitErr(err)
	}

	command := strings.Join(ctx.Args().Slice(), " ")
	if command == "" {
		if len(hosts) != 1 {
			return cli.Exit("error: interactive shell needs exactly one host", 1)
		}
		return interactiveShell(ctx, cfg, hosts[0])
	}

	log := newLogger(ctx)
	keys := keyResolver(cfg)

	bastionKey, err := keys.Resolve(cfg.Bastion.Key)
	if err != nil {
		return exitErr(err)
	}

	gw, err := gateway.Dial(ctx.Context, cfg.Bastion.Addr, cfg.Bastion.User, []string{bastionKey}, keys)
	if err != nil {
		return exitErr(err)
	}
	defer gw.Close()

	_, err = fanout.Run(ctx.Context, gw, hosts, command, fanout.Options{Log: log})
	if err != nil {
		return exitErr(err)
	}
	return nil
}

// selectHosts resolves --hosts references, or falls back to every host
// in the selected environment. Resolution failures abort before any
// connection is opened.
func selectHosts(ctx *cli.Context, cfg *config.Config) ([]models.Host, error) {
	src := inventory.NewStatic(cfg.Hosts())

	if refs := ctx.StringSlice("hosts"); len(refs) > 0 {
		return inventory.ResolveAll(src, refs)
	}

	name := ctx.String("env")
	if name == "" && len(cfg.Environments) == 1 {
		name = cfg.EnvironmentNames()[0]
	}
	if name == "" {
		return nil, errors.New("select hosts with --hosts or an environment with --env")
	}
	return src.ByEnvironment(name)
}

func interactiveShell(ctx *cli.Context, cfg *config.Config, host models.Host) error {
	keyPath, err := keyResolver(cfg).Resolve(host.KeyName)
	if err != nil {
		return exitErr(err)
	}

	r := runner.New(runner.Options{
		Platform: runner.SSH{
			Host:        host,
			BastionAddr: cfg.Bastion.Addr,
			BastionUser: cfg.Bastion.User,
			KeyPath:     keyPath,
		},
		Script: bootstrap.Script{Command: "bash -l"},
		Policy: runner.FailReturn,
	})
	if err := r.Run(ctx.Context); err != nil {
		var exit *runner.ExitError
		if errors.As(err, &exit) {
			return cli.Exit(err.Error(), exit.Code)
		}
		return exitErr(err)
	}
	return nil
}
