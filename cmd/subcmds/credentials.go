package subcmds

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/creds"
)

func CredsCmd() *cli.Command {
	return &cli.Command{
		Name:   "creds",
		Usage:  "Print AWS credentials as a credential_process Version-1 document",
		Action: credsAction,
	}
}

func credsAction(ctx *cli.Context) error {
	resolver, err := creds.NewResolver()
	if err != nil {
		return exitErr(err)
	}

	c, err := resolver.Resolve()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return exitErr(err)
	}
	fmt.Fprintln(ctx.App.Writer, string(data))
	return nil
}
