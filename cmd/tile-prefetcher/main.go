package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geoyee/globetile/internal/config"
	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/pipeline"
)

type options struct {
	cfg      *model.Config
	sector   model.Sector
	minLevel int
	maxLevel int
	interval time.Duration
}

func parseArgs(args []string) (*options, error) {
	o := &options{}
	var minLon, minLat, maxLon, maxLat float64
	fs := flag.NewFlagSet("tile-prefetcher", flag.ContinueOnError)
	cfg, err := config.ParseArgs(fs, args, func(fs *flag.FlagSet) {
		fs.Float64Var(&minLon, "min-lon", math.NaN(), "[Required] Minimum longitude (e.g., -180.0)")
		fs.Float64Var(&minLat, "min-lat", math.NaN(), "[Required] Minimum latitude (e.g., -85.0)")
		fs.Float64Var(&maxLon, "max-lon", math.NaN(), "[Required] Maximum longitude (e.g., 180.0)")
		fs.Float64Var(&maxLat, "max-lat", math.NaN(), "[Required] Maximum latitude (e.g., 85.0)")
		fs.IntVar(&o.minLevel, "min-level", 0, "[Optional] Minimum level")
		fs.IntVar(&o.maxLevel, "max-level", 10, "[Optional] Maximum level")
		fs.DurationVar(&o.interval, "progress", 10*time.Second, "[Optional] Progress log interval")
	})
	if err != nil {
		return nil, err
	}

	if cfg.URLTemplate == "" {
		return nil, errors.New("-url parameter is required")
	}
	for name, v := range map[string]float64{"min-lon": minLon, "min-lat": minLat, "max-lon": maxLon, "max-lat": maxLat} {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("-%s parameter is required", name)
		}
	}
	o.sector = model.Sector{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	if err := o.sector.Validate(); err != nil {
		return nil, err
	}
	if o.maxLevel >= cfg.NumLevels {
		return nil, fmt.Errorf("-max-level %d exceeds the %d configured levels", o.maxLevel, cfg.NumLevels)
	}
	o.cfg = cfg
	return o, nil
}

func run(ctx context.Context, o *options, popts ...pipeline.Option) (int64, error) {
	log := logger.Component("prefetcher")
	popts = append([]pipeline.Option{pipeline.WithMonitorInterval(o.interval)}, popts...)
	p, err := pipeline.New(o.cfg, popts...)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("close failed", "op", "run", "error", err)
		}
	}()

	log.Info("prefetch configured", "op", "run",
		"url", o.cfg.URLTemplate,
		"sector", o.sector.String(),
		"min_level", o.minLevel,
		"max_level", o.maxLevel,
		"dir", o.cfg.SaveDir,
		"redis", o.cfg.RedisAddr != "",
		"threads", o.cfg.Threads)

	p.Monitor.Start()
	n, err := p.Prefetch(ctx, o.sector, o.minLevel, o.maxLevel, nil)
	p.Monitor.Stop()
	p.Monitor.LogFinal()
	p.Retriever.LogErrorStats()
	return n, err
}

func main() {
	logger.Setup()
	log := logger.Component("prefetcher")

	o, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := run(ctx, o)
	if err != nil {
		log.Error("prefetch failed", "error", err, "retrieved", n)
		os.Exit(1)
	}
	log.Info("prefetch completed successfully", "retrieved", n)
}
