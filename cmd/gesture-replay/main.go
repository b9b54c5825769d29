package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/geoyee/globetile/internal/gesture"
	"github.com/geoyee/globetile/internal/logger"
)

// scriptEvent is a gesture event whose time may be given as a millisecond
// offset from the start of the script.
type scriptEvent struct {
	gesture.Event
	OffsetMs int64 `json:"t"`
}

// Script is a recorded interaction.
type Script struct {
	Recognizers []string      `json:"recognizers"`
	Events      []scriptEvent `json:"events"`
}

// Notification is one listener callback observed during replay.
type Notification struct {
	Event       int          `json:"event"`
	Recognizer  string       `json:"recognizer"`
	State       string       `json:"state"`
	Translation gesture.Vec2 `json:"translation"`
	Scale       *float32     `json:"scale,omitempty"`
	Rotation    *float32     `json:"rotation,omitempty"`
}

// Result is the final state of one recognizer.
type Result struct {
	Recognizer  string       `json:"recognizer"`
	State       string       `json:"state"`
	Outcome     string       `json:"outcome"`
	Translation gesture.Vec2 `json:"translation"`
	Scale       *float32     `json:"scale,omitempty"`
	Rotation    *float32     `json:"rotation,omitempty"`
}

// Report is the replay output.
type Report struct {
	Notifications []Notification `json:"notifications"`
	Results       []Result       `json:"results"`
}

func newRecognizer(name string) (gesture.Recognizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "drag":
		return gesture.NewDrag(), nil
	case "pan":
		return gesture.NewPan(), nil
	case "pinch":
		return gesture.NewPinch(), nil
	case "rotation", "rotate":
		return gesture.NewRotation(), nil
	case "tilt":
		return gesture.NewTilt(), nil
	case "tap":
		return gesture.NewTap(), nil
	case "click":
		return gesture.NewClick(), nil
	}
	return nil, fmt.Errorf("unknown recognizer %q", name)
}

func deltas(r gesture.Recognizer) (scale, rotation *float32) {
	switch v := r.(type) {
	case *gesture.Pinch:
		s := v.Scale()
		scale = &s
	case *gesture.Rotation:
		a := v.Rotation()
		rotation = &a
	}
	return scale, rotation
}

// replay runs script through a surface holding the named recognizers, or
// the script's own list when names is empty.
func replay(script *Script, names []string) (*Report, error) {
	if len(names) == 0 {
		names = script.Recognizers
	}
	if len(names) == 0 {
		return nil, errors.New("no recognizers given")
	}

	report := &Report{Notifications: []Notification{}}
	surface := gesture.NewSurface()
	current := 0
	for _, name := range names {
		r, err := newRecognizer(name)
		if err != nil {
			return nil, err
		}
		r.AddGestureListener(func(r gesture.Recognizer) {
			scale, rotation := deltas(r)
			report.Notifications = append(report.Notifications, Notification{
				Event:       current,
				Recognizer:  r.Name(),
				State:       r.State().String(),
				Translation: r.Translation(),
				Scale:       scale,
				Rotation:    rotation,
			})
		})
		surface.Attach(r)
	}

	base := time.Unix(0, 0).UTC()
	for i, se := range script.Events {
		e := se.Event
		if e.Time.IsZero() {
			e.Time = base.Add(time.Duration(se.OffsetMs) * time.Millisecond)
		}
		current = i
		surface.Dispatch(e)
	}

	for _, r := range surface.Recognizers() {
		scale, rotation := deltas(r)
		report.Results = append(report.Results, Result{
			Recognizer:  r.Name(),
			State:       r.State().String(),
			Outcome:     r.Outcome().String(),
			Translation: r.Translation(),
			Scale:       scale,
			Rotation:    rotation,
		})
	}
	return report, nil
}

func readScript(r io.Reader) (*Script, error) {
	var script Script
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &script, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("gesture-replay", flag.ContinueOnError)
	input := fs.String("script", "-", "[Optional] Event script file (- for stdin)")
	names := fs.String("recognizers", "", "[Optional] Comma-separated recognizers (drag, pan, pinch, rotation, tilt, tap, click)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	script, err := readScript(in)
	if err != nil {
		return err
	}

	var list []string
	if *names != "" {
		list = strings.Split(*names, ",")
	}
	report, err := replay(script, list)
	if err != nil {
		return err
	}

	logger.Component("replay").Info("replay finished", "op", "replay",
		"events", len(script.Events), "notifications", len(report.Notifications))
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func main() {
	logger.Setup()
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Component("replay").Error("replay failed", "error", err)
		os.Exit(1)
	}
}
