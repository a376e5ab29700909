package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/hpa/cmd/hpa/console"
	"github.com/mklimuk/hpa/config"
	"github.com/mklimuk/hpa/station"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "take one station reading",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yaml", Usage: "print the report as YAML"},
		&cli.Float64Flag{Name: "reference", Usage: "sea-level reference pressure in hPa"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if r := c.Float64("reference"); r > 0 {
			cfg.Station.Reference = r
		}
		st, dev, err := openStation(c, cfg, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = dev.Close()
		}()
		report, err := st.Poll(commandContext(c))
		if err != nil {
			return console.Fail(err, "pressure read failed")
		}
		if c.Bool("yaml") {
			enc := yaml.NewEncoder(os.Stdout)
			err = enc.Encode(report)
			if err != nil {
				return console.Exit(1, "encoding error: %s", console.Red(err))
			}
			return nil
		}
		printReport(report)
		return nil
	},
}

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "poll the station periodically",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "interval", Usage: "poll interval, overrides the configuration"},
		&cli.StringFlag{Name: "listen", Usage: "serve Prometheus metrics on this address"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if i := c.Duration("interval"); i > 0 {
			cfg.Station.Interval = i
		}
		if l := c.String("listen"); l != "" {
			cfg.Metrics.Listen = l
		}
		metrics := station.NewMetrics()
		st, dev, err := openStation(c, cfg, metrics)
		if err != nil {
			return err
		}
		defer func() {
			_ = dev.Close()
		}()

		g, ctx := errgroup.WithContext(commandContext(c))
		if cfg.Metrics.Listen != "" {
			reg := prometheus.NewRegistry()
			err = metrics.Register(reg)
			if err != nil {
				return console.Exit(1, "metrics registration error: %s", console.Red(err))
			}
			srv := &http.Server{
				Addr:              cfg.Metrics.Listen,
				Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				slog.Info("serving metrics", "listen", cfg.Metrics.Listen)
				err := srv.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdown)
			})
		}
		g.Go(func() error {
			return st.Run(ctx, cfg.Station.Interval, func(r station.Report, err error) {
				if err != nil {
					console.Errorf("poll failed: %s", err)
					return
				}
				printReport(r)
			})
		})
		err = g.Wait()
		if err != nil && !errors.Is(err, ctx.Err()) {
			return console.Exit(1, "monitor stopped: %s", console.Red(err))
		}
		return nil
	},
}

func openStation(c *cli.Context, cfg config.Config, metrics *station.Metrics) (*station.Station, *device, error) {
	ctx := commandContext(c)
	dev, err := openBus(ctx, cfg.Bus)
	if err != nil {
		return nil, nil, console.Exit(1, "bus error: %s", console.Red(err))
	}
	sensor, err := openPressureSensor(ctx, dev, cfg.Sensor)
	if err != nil {
		_ = dev.Close()
		return nil, nil, console.Fail(err, "pressure sensor initialization failed")
	}
	opts := []station.Opt{
		station.WithReference(cfg.Station.Reference),
		station.WithLowPressure(cfg.Station.LowPressure),
	}
	if metrics != nil {
		opts = append(opts, station.WithMetrics(metrics))
	}
	aux, err := openAux(ctx, dev, cfg.Aux)
	if err != nil {
		console.Warnf("auxiliary sensor unavailable: %s", err)
	} else if aux != nil {
		opts = append(opts, station.WithAux(aux))
	}
	if cfg.Clock.Enabled {
		opts = append(opts, station.WithClock(openClock(dev, cfg.Clock)))
	}
	st := station.New(sensor, opts...)
	st.Init(ctx)
	return st, dev, nil
}

func printReport(r station.Report) {
	console.PInfof(console.PictoCalendar, "%s", console.White(r.Time.Format(time.DateTime)))
	console.Measure(console.PictoThermometer, fmt.Sprintf("%.1f", r.Reading.Temperature), "°C")
	if r.AuxTemperature != nil {
		console.Measure(console.PictoThermometer, fmt.Sprintf("%.1f", *r.AuxTemperature), "°C", "(aux)")
	}
	console.Measure(console.PictoGauge, fmt.Sprintf("%.2f", r.Reading.Pressure), "hPa", console.Trend(r.Trend))
	console.Measure(console.PictoMountain, int(r.Altitude), "m", fmt.Sprintf("(ref %.2f hPa)", r.Reference))
	console.Printf("%s\n", console.Forecast(r.Forecast))
	if r.LowPressure {
		console.Alertf("low pressure: %.2f hPa", r.Reading.Pressure)
	}
}
