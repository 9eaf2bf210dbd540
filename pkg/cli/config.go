package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/devrank/pkg/config"
	"github.com/urfave/cli/v3"
)

var (
	dirFlag = &cli.StringFlag{
		Name:  "dir",
		Usage: "Directory to write config.yaml into (default: $HOME/.devrank)",
	}

	configCmd = &cli.Command{
		Name:            "config",
		Usage:           "Inspect or create the configuration file",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration",
				Action: cmdConfigInit,
				Flags: []cli.Flag{
					dirFlag,
				},
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: cmdConfigShow,
			},
		},
	}
)

func cmdConfigInit(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String(dirFlag.Name)
	if dir == "" {
		dir = getHomeDir()
	}

	path, err := config.Save(dir, config.New())
	if err != nil {
		return err
	}
	fmt.Fprintf(writer(cmd), "Config written to: %s\n", path)
	return nil
}

func cmdConfigShow(_ context.Context, cmd *cli.Command) error {
	return encode(cmd, getState(cmd).cfg)
}
