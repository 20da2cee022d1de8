package subcmds

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/heroku"
)

func PsCmd() *cli.Command {
	return &cli.Command{
		Name:   "ps",
		Usage:  "List the environment's running Heroku dynos",
		Action: psAction,
	}
}

func psAction(ctx *cli.Context) error {
	app, err := herokuApp(ctx)
	if err != nil {
		return exitErr(err)
	}

	dynos, err := heroku.NewClient("").Dynos(ctx.Context, app)
	if err != nil {
		return exitErr(err)
	}
	if len(dynos) == 0 {
		fmt.Fprintf(ctx.App.Writer, "no dynos running on %s\n", app)
		return nil
	}

	w := tabwriter.NewWriter(ctx.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tCOMMAND")
	for _, d := range dynos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.State, d.Command)
	}
	return w.Flush()
}
