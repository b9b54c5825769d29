package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/geoyee/globetile/internal/config"
	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/pipeline"
)

func main() {
	logger.Setup()
	log := logger.Component("service")

	var port int
	var origins string
	var progress time.Duration
	fs := flag.NewFlagSet("tile-cache-service", flag.ContinueOnError)
	cfg, err := config.ParseArgs(fs, os.Args[1:], func(fs *flag.FlagSet) {
		fs.IntVar(&port, "port", 8080, "[Optional] Listen port")
		fs.StringVar(&origins, "cors", "*", "[Optional] Comma-separated allowed origins")
		fs.DurationVar(&progress, "progress", 30*time.Second, "[Optional] Progress log interval")
	})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	p, err := pipeline.New(cfg, pipeline.WithMonitorInterval(progress))
	if err != nil {
		log.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}
	p.Monitor.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(p, port, strings.Split(origins, ","))
	serveErr := server.Start(ctx)
	if err := p.Close(); err != nil {
		log.Warn("pipeline close failed", "error", err)
	}
	p.Monitor.LogFinal()
	if serveErr != nil {
		log.Error("server failed", "error", serveErr)
		os.Exit(1)
	}
}
