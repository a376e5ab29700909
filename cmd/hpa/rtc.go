package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hpa/clock"
	"github.com/mklimuk/hpa/cmd/hpa/console"
)

var rtcCmd = cli.Command{
	Name:  "rtc",
	Usage: "DS1307 real-time clock",
	Subcommands: cli.Commands{
		&rtcGetCmd,
		&rtcSetCmd,
		&rtcSyncCmd,
		&rtcInitCmd,
	},
}

// withClock opens the bus and runs fn against the configured clock.
func withClock(c *cli.Context, fn func(rtc *clock.DS1307) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return console.Exit(1, "configuration error: %s", console.Red(err))
	}
	dev, err := openBus(commandContext(c), cfg.Bus)
	if err != nil {
		return console.Exit(1, "bus error: %s", console.Red(err))
	}
	defer func() {
		_ = dev.Close()
	}()
	return fn(openClock(dev, cfg.Clock))
}

var rtcGetCmd = cli.Command{
	Name:  "get",
	Usage: "print the clock time and date",
	Action: func(c *cli.Context) error {
		return withClock(c, func(rtc *clock.DS1307) error {
			ctx := commandContext(c)
			halted, err := rtc.Halted(ctx)
			if err != nil {
				return console.Fail(err, "clock read failed")
			}
			now, err := rtc.Now(ctx)
			if err != nil {
				return console.Fail(err, "clock read failed")
			}
			console.PInfof(console.PictoClock, "%s", console.White(now.Format(time.DateTime)))
			if halted {
				console.Warnf("oscillator halted, run %s", console.Bold("hpa rtc init"))
			}
			return nil
		})
	},
}

var rtcSetCmd = cli.Command{
	Name:      "set",
	Usage:     "set the clock",
	ArgsUsage: "YYYY-MM-DD HH:MM:SS",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected date and time arguments")
		}
		now, err := time.ParseInLocation(time.DateTime, fmt.Sprintf("%s %s", c.Args().Get(0), c.Args().Get(1)), time.Local)
		if err != nil {
			return console.Exit(1, "invalid date: %s", console.Red(err))
		}
		return withClock(c, func(rtc *clock.DS1307) error {
			err := rtc.SetNow(commandContext(c), now)
			if err != nil {
				return console.Fail(err, "clock write failed")
			}
			console.PInfof(console.PictoPin, "clock set to %s", console.White(now.Format(time.DateTime)))
			return nil
		})
	},
}

var rtcSyncCmd = cli.Command{
	Name:  "sync",
	Usage: "copy the system time into the clock",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		return withClock(c, func(rtc *clock.DS1307) error {
			ctx := commandContext(c)
			current, err := rtc.Now(ctx)
			if err != nil {
				console.Warnf("could not read clock: %s", err)
			} else {
				console.Infof("clock reads %s, system %s", console.White(current.Format(time.DateTime)), console.White(time.Now().Format(time.DateTime)))
			}
			if !c.Bool("yes") {
				ok, err := console.Confirm("overwrite the clock with the system time?")
				if err != nil {
					return console.Exit(1, "prompt error: %s", console.Red(err))
				}
				if !ok {
					console.PInfof(console.PictoStop, "aborted")
					return nil
				}
			}
			now := time.Now()
			err = rtc.SetNow(ctx, now)
			if err != nil {
				return console.Fail(err, "clock write failed")
			}
			console.PInfof(console.PictoPin, "clock set to %s", console.White(now.Format(time.DateTime)))
			return nil
		})
	},
}

var rtcInitCmd = cli.Command{
	Name:  "init",
	Usage: "start the oscillator",
	Action: func(c *cli.Context) error {
		return withClock(c, func(rtc *clock.DS1307) error {
			err := rtc.Init(commandContext(c))
			if err != nil {
				return console.Fail(err, "clock init failed")
			}
			console.Infof("oscillator running")
			return nil
		})
	},
}
