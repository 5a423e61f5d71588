package main

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/field-trial-form/internal/config"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/urfave/cli/v3"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "resolve a postcode and write its hourly forecast as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "postcode",
				Aliases:  []string{"p"},
				Usage:    "postcode or place to look up",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "output file",
				Value:   domain.CSVFilename,
			},
		},
		Action: runFetch,
	}
}

func runFetch(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	wc, err := newWeatherCache(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := wc.close(); err != nil {
			logger.Error("weather cache close error", "error", err)
		}
	}()

	postcode := c.String("postcode")
	loc := domain.ResolvePostcode(ctx, newGeocoder(cfg, metrics, logger), postcode, logger)
	if !loc.Resolved() {
		return fmt.Errorf("postcode %q could not be resolved (%s)", postcode, loc.Status)
	}

	series, err := newWeatherClient(cfg, wc.cache, metrics, logger).Fetch(ctx, loc.Coordinates)
	if err != nil {
		return err
	}

	out := c.String("out")
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := series.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}

	logger.Info("forecast written",
		"postcode", postcode,
		"lat", loc.Coordinates.Lat,
		"lon", loc.Coordinates.Lon,
		"rows", series.Len(),
		"path", out,
	)
	return nil
}
