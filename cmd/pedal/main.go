package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/docopt/docopt.go"
	"go.uber.org/zap"

	"github.com/TFMV/pedal/agg"
	"github.com/TFMV/pedal/clean"
	"github.com/TFMV/pedal/dataset"
	"github.com/TFMV/pedal/export"
	"github.com/TFMV/pedal/loader"
	"github.com/TFMV/pedal/trip"
)

func main() {
	usage := `Bike-share trip analytics.

Usage:
  pedal report --data-dir=<dir> [--out-dir=<dir>] [--bucket=<name>] [--prefix=<prefix>]
  pedal (-h | --help)
  pedal --version

Options:
  -h --help          Show this screen.
  --version          Show version.
  --data-dir=<dir>   Directory holding the monthly YYYYMM-*-tripdata.csv files.
  --out-dir=<dir>    Directory for the combined CSV, chart table, and snapshot [default: out].
  --bucket=<name>    GCS bucket to download the monthly exports from first.
  --prefix=<prefix>  Object prefix within the bucket.
`
	arguments, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}
	if v, _ := arguments.Bool("--version"); v {
		fmt.Println("pedal version 1.0.0")
		os.Exit(0)
	}
	dataDir, _ := arguments.String("--data-dir")
	outDir, _ := arguments.String("--out-dir")
	bucket, _ := arguments.String("--bucket")
	prefix, _ := arguments.String("--prefix")

	// Initialize zap logger.
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	var paths []string
	if bucket != "" {
		fetcher, err := loader.NewBucketFetcher(ctx, bucket, logger)
		if err != nil {
			logger.Fatal("Failed to create bucket fetcher", zap.Error(err))
		}
		defer fetcher.Close()
		paths, err = fetcher.Fetch(ctx, prefix, dataDir)
		if err != nil {
			logger.Fatal("Failed to fetch monthly exports", zap.Error(err))
		}
	} else {
		paths, err = loader.Discover(dataDir)
		if err != nil {
			logger.Fatal("Failed to discover monthly exports", zap.Error(err))
		}
	}

	table, err := loader.New(logger).Load(paths)
	if err != nil {
		logger.Fatal("Failed to load trip files", zap.Error(err))
	}

	result, err := clean.New(logger).Clean(table)
	if err != nil {
		logger.Fatal("Failed to clean dataset", zap.Error(err))
	}

	data := dataset.FromTrips(result.Trips, 0)
	defer data.Close()

	report(logger, data)

	if err := writeOutputs(logger, outDir, result, data); err != nil {
		logger.Fatal("Failed to write outputs", zap.Error(err))
	}
}

// report logs the comparison tables the analysis is about.
func report(logger *zap.Logger, data *dataset.Dataset) {
	counts := agg.CountBy(data, agg.GroupBy{UserType: true})
	means := agg.MeanDurationBy(data, agg.GroupBy{UserType: true})
	for _, user := range []string{agg.UserCasual, agg.UserMember} {
		key := agg.Key{UserType: user}
		logger.Info("Rides by user type",
			zap.String("user_type", user),
			zap.Int64("rides", counts[key]),
			zap.Float64("mean_minutes", means[key]))
	}

	byDay := agg.MeanDurationBy(data, agg.GroupBy{UserType: true, Day: true})
	keys := make([]agg.Key, 0, len(byDay))
	for key := range byDay {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, _ := trip.DayNumberOf(keys[i].Day)
		dj, _ := trip.DayNumberOf(keys[j].Day)
		if di != dj {
			return di < dj
		}
		return keys[i].UserType < keys[j].UserType
	})
	for _, key := range keys {
		logger.Info("Mean ride length by day",
			zap.String("day", key.Day),
			zap.String("user_type", key.UserType),
			zap.Float64("mean_minutes", byDay[key]))
	}

	logger.Info("Casual share of rides",
		zap.Float64("weekday_pct", agg.WeekdayShare(data)),
		zap.Float64("weekend_pct", agg.WeekendShare(data)))
}

func writeOutputs(logger *zap.Logger, outDir string, result *clean.Result, data *dataset.Dataset) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %q: %w", outDir, err)
	}

	combined := filepath.Join(outDir, "combined-tripdata.csv")
	if err := export.WriteCombined(combined, result.Trips); err != nil {
		return err
	}
	logger.Info("Wrote combined dataset",
		zap.String("path", combined),
		zap.Int("rows", result.Kept()))

	monthly := filepath.Join(outDir, "monthly-rides.csv")
	if err := export.WriteMonthly(monthly, agg.MonthlyRides(data)); err != nil {
		return err
	}
	logger.Info("Wrote chart table", zap.String("path", monthly))

	snapshot := filepath.Join(outDir, "trips.arrow")
	if err := export.NewSnapshot(data).SaveToDisk(snapshot); err != nil {
		return err
	}
	logger.Info("Wrote dataset snapshot", zap.String("path", snapshot))
	return nil
}
