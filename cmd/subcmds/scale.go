package subcmds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/vcnkl/enops/heroku"
	"github.com/vcnkl/enops/logger"
)

func ScaleCmd() *cli.Command {
	return &cli.Command{
		Name:      "scale",
		Usage:     "Scale the environment's Heroku formation",
		ArgsUsage: "TYPE=QUANTITY...",
		Action:    scaleAction,
	}
}

func scaleAction(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return cli.Exit("error: at least one TYPE=QUANTITY required (e.g. web=2 worker=1)", 1)
	}

	updates := make([]heroku.FormationUpdate, 0, ctx.Args().Len())
	for _, arg := range ctx.Args().Slice() {
		procType, qty, ok := strings.Cut(arg, "=")
		if !ok || procType == "" {
			return cli.Exit(fmt.Sprintf("error: %q is not TYPE=QUANTITY", arg), 1)
		}
		quantity, err := strconv.Atoi(qty)
		if err != nil || quantity < 0 {
			return cli.Exit(fmt.Sprintf("error: %q is not a valid quantity", qty), 1)
		}
		updates = append(updates, heroku.FormationUpdate{Type: procType, Quantity: quantity})
	}

	app, err := herokuApp(ctx)
	if err != nil {
		return exitErr(err)
	}

	formations, err := heroku.NewClient("").Scale(ctx.Context, app, updates)
	if err != nil {
		return exitErr(err)
	}

	log := newLogger(ctx)
	for _, f := range formations {
		log.Info("formation scaled",
			logger.String("app", app),
			logger.String("type", f.Type),
			logger.Int("quantity", f.Quantity),
			logger.String("size", f.Size))
	}
	return nil
}
