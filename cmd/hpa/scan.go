package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hpa"
	"github.com/mklimuk/hpa/cmd/hpa/console"
)

// known devices of the station bus
var knownAddresses = map[byte]string{
	0x48: "TC74 (A0)",
	0x4D: "TC74 (A5)",
	0x68: "DS1307",
	0x76: "BMP280 (SDO low)",
	0x77: "BMP180 / BMP280 (SDO high)",
}

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe every 7-bit address on the bus",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx := commandContext(c)
		dev, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer func() {
			_ = dev.Close()
		}()
		found := scan(ctx, dev.bus)
		w := tabwriter.NewWriter(os.Stdout, 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ADDRESS\tDEVICE\n")
		for _, addr := range found {
			_, _ = fmt.Fprintf(w, "%#02x\t%s\n", addr, knownAddresses[addr])
		}
		_ = w.Flush()
		if len(found) == 0 {
			console.Warnf("no device acknowledged")
		}
		return nil
	},
}

// scan reads one byte from every non-reserved address and returns the ones that answered.
func scan(ctx context.Context, bus hpa.AddressableReader) []byte {
	var found []byte
	buf := make([]byte, 1)
	for addr := byte(0x08); addr <= 0x77; addr++ {
		probe, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		err := bus.ReadFromAddr(probe, addr, buf)
		cancel()
		if err == nil {
			found = append(found, addr)
		}
	}
	return found
}
