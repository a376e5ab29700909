package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hpa/cmd/hpa/console"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		out, err := cfg.Dump()
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		_, _ = os.Stdout.Write(out)
		return nil
	},
}
