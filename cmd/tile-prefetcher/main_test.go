package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geoyee/globetile/internal/pipeline"
)

type countingFetcher struct {
	calls atomic.Int64
	data  []byte
}

func (f *countingFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	return f.data, nil
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseArgsRequired(t *testing.T) {
	base := []string{"-env-file", "", "-url", "https://t.test/{z}/{x}/{y}.png"}
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid", append(base, "-min-lon", "116", "-min-lat", "39", "-max-lon", "117", "-max-lat", "40"), false},
		{"missing url", []string{"-env-file", "", "-min-lon", "116", "-min-lat", "39", "-max-lon", "117", "-max-lat", "40"}, true},
		{"missing lon", append(base, "-min-lat", "39", "-max-lon", "117", "-max-lat", "40"), true},
		{"inverted sector", append(base, "-min-lon", "117", "-min-lat", "39", "-max-lon", "116", "-max-lat", "40"), true},
		{"level out of range", append(base, "-min-lon", "116", "-min-lat", "39", "-max-lon", "117", "-max-lat", "40", "-max-level", "40"), true},
		{"unknown flag", append(base, "-zoom", "3"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string(nil), tt.args...)
			_, err := parseArgs(args)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseArgsDefaults(t *testing.T) {
	o, err := parseArgs([]string{"-env-file", "", "-url", "https://t.test/{z}/{x}/{y}.png",
		"-min-lon", "116", "-min-lat", "39", "-max-lon", "117", "-max-lat", "40"})
	if err != nil {
		t.Fatal(err)
	}
	if o.minLevel != 0 || o.maxLevel != 10 {
		t.Errorf("levels = %d..%d, want 0..10", o.minLevel, o.maxLevel)
	}
	if o.cfg.Threads != 10 {
		t.Errorf("threads = %d, want 10", o.cfg.Threads)
	}
	if o.sector.MinLon != 116 || o.sector.MaxLat != 40 {
		t.Errorf("unexpected sector %v", o.sector)
	}
}

func TestRunPrefetchesIntoDisk(t *testing.T) {
	dir := t.TempDir()
	o, err := parseArgs([]string{"-env-file", "", "-url", "https://t.test/{z}/{x}/{y}.png",
		"-dir", dir, "-rate", "0", "-min-size", "0", "-tile-width", "8", "-tile-height", "8",
		"-min-lon", "116", "-min-lat", "39", "-max-lon", "117", "-max-lat", "40",
		"-min-level", "0", "-max-level", "3", "-progress", "1h"})
	if err != nil {
		t.Fatal(err)
	}

	f := &countingFetcher{data: pngPayload(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := run(ctx, o, pipeline.WithFetcher(f))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	// A one-degree box sits in a single tile on each of levels 0..3.
	if n != 4 {
		t.Errorf("retrieved %d tiles, want 4", n)
	}
	if got := f.calls.Load(); got != 4 {
		t.Errorf("fetches = %d, want 4", got)
	}

	// Second run is served by the disk tier.
	f2 := &countingFetcher{data: pngPayload(t)}
	if _, err := run(ctx, o, pipeline.WithFetcher(f2)); err != nil {
		t.Fatal(err)
	}
	if got := f2.calls.Load(); got != 0 {
		t.Errorf("fetches on second run = %d, want 0", got)
	}
}
