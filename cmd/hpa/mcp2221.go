package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/hpa/adapter"
	"github.com/mklimuk/hpa/cmd/hpa/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 USB to I2C bridge",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221DetectCmd,
		&mcp2221ADCCmd,
	},
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	err := enc.Encode(v)
	if err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		status, err := a.Status(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck transfer",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		status, err := a.ReleaseBus(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var mcp2221DetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list attached bridges",
	Action: func(c *cli.Context) error {
		devices := adapter.Devices()
		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tPRODUCT\n")
		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\n", dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Product)
		}
		_ = w.Flush()
		if len(devices) == 0 {
			console.Warnf("no MCP2221 attached")
		}
		return nil
	},
}

var mcp2221ADCCmd = cli.Command{
	Name:  "adc",
	Usage: "switch GP1..GP3 to analog inputs and print the conversions",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "persist",
			Usage: "also store the analog designations in flash (applied after a bridge reset)",
		},
	},
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		a := adapter.NewMCP2221()
		err := a.EnableADC(ctx)
		if err != nil {
			return console.Exit(1, "could not enable ADC: %s", console.Red(err))
		}
		if c.Bool("persist") {
			err = a.PersistADC(ctx)
			if err != nil {
				return console.Exit(1, "could not store ADC designations: %s", console.Red(err))
			}
		}
		status, err := a.Status(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		for i, v := range status.ADC {
			console.Printf("ADC%d %s\n", i+1, console.White(v))
		}
		return nil
	},
}
