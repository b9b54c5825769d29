package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/metrics"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/pipeline"
	"github.com/geoyee/globetile/internal/resource"
	"github.com/geoyee/globetile/internal/tiles"
)

// APIResponse is the JSON envelope of every API reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Server serves the tile cache API over HTTP.
type Server struct {
	pipeline       *pipeline.Pipeline
	taskManager    *TaskManager
	port           int
	allowedOrigins []string
	log            *slog.Logger
}

// NewServer creates a server for p listening on port.
func NewServer(p *pipeline.Pipeline, port int, allowedOrigins []string) *Server {
	return &Server{
		pipeline:       p,
		taskManager:    NewTaskManager(p),
		port:           port,
		allowedOrigins: allowedOrigins,
		log:            logger.Component("server"),
	}
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/visible", s.handleVisible)
	mux.HandleFunc("/api/tile/", s.handleTile)
	mux.HandleFunc("/api/cache", s.handleCache)
	mux.HandleFunc("/api/prefetch", s.handlePrefetch)
	mux.HandleFunc("/api/status/", s.handleStatus)
	mux.HandleFunc("/api/stop/", s.handleStop)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/delete/", s.handleDelete)
	mux.Handle("/metrics", metrics.Handler())
	return s.corsMiddleware(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("tile cache service starting", "op", "start", "addr", srv.Addr)
	s.log.Info("endpoints", "op", "start", "routes", []string{
		"GET /api/health",
		"GET /api/visible?min_lat&max_lat&min_lon&max_lon&width&height",
		"GET /api/tile/{level}/{row}/{col}",
		"GET|DELETE /api/cache",
		"POST /api/prefetch",
		"GET /api/status/{id}",
		"POST /api/stop/{id}",
		"GET /api/tasks",
		"DELETE /api/delete/{id}",
		"GET /metrics",
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.taskManager.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if slices.Contains(s.allowedOrigins, "*") {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && slices.Contains(s.allowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("response write failed", "op", "respond", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, format string, args ...any) {
	s.respondJSON(w, statusCode, APIResponse{Success: false, Message: fmt.Sprintf(format, args...)})
}

func (s *Server) allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if slices.Contains(methods, r.Method) {
		return true
	}
	s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "healthy", "time": time.Now().Format(time.RFC3339)},
	})
}

// VisibleTile is one entry of a visible-tiles response.
type VisibleTile struct {
	Level  int          `json:"level"`
	Row    int          `json:"row"`
	Column int          `json:"column"`
	Key    string       `json:"key"`
	Sector model.Sector `json:"sector"`
	Cached bool         `json:"cached"`
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return math.NaN(), fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN(), fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}

	var vals [6]float64
	for i, name := range []string{"min_lat", "max_lat", "min_lon", "max_lon", "width", "height"} {
		v, err := queryFloat(r, name)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		vals[i] = v
	}
	dc := tiles.DrawContext{
		VisibleSector: model.Sector{MinLat: vals[0], MaxLat: vals[1], MinLon: vals[2], MaxLon: vals[3]},
		Viewport:      tiles.Viewport{Width: int(vals[4]), Height: int(vals[5])},
	}
	dc.EyePosition.Latitude, dc.EyePosition.Longitude = dc.VisibleSector.Centroid()

	tc := s.pipeline.Tiles
	visible, err := tc.AssembleTiles(dc)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	out := make([]VisibleTile, 0, len(visible))
	for _, tile := range visible {
		key := tc.Key(tile)
		_, cached := tc.ResourceForTile(tile)
		out = append(out, VisibleTile{
			Level:  tile.Level,
			Row:    tile.Row,
			Column: tile.Column,
			Key:    key,
			Sector: tile.Sector,
			Cached: cached,
		})
	}
	res, _ := dc.TargetResolution(s.pipeline.Config.DetailControl)
	s.respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"resolution": res,
			"tiles":      out,
			"in_flight":  s.pipeline.Retriever.InFlight(),
		},
	})
}

// parseTilePath reads level, row and column from /api/tile/{level}/{row}/{col}.
func parseTilePath(path string) (level, row, col int, err error) {
	parts := strings.Split(strings.TrimPrefix(path, "/api/tile/"), "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid tile path %q", path)
	}
	var vals [3]int
	for i, p := range parts {
		if vals[i], err = strconv.Atoi(p); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid tile path %q", path)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet) {
		return
	}
	level, row, col, err := parseTilePath(r.URL.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	tile, err := s.pipeline.Tiling.Tile(level, row, col)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "%v", err)
		return
	}

	tc := s.pipeline.Tiles
	res, ok := tc.Cache().Get(tc.Key(tile))
	if !ok {
		started := tc.RequestTileResource(tile, nil)
		s.respondJSON(w, http.StatusAccepted, APIResponse{
			Success: true,
			Message: "Tile retrieval pending",
			Data:    map[string]any{"key": tc.Key(tile), "requested": started},
		})
		return
	}

	var buf bytes.Buffer
	switch v := res.(type) {
	case *resource.Texture:
		if err := png.Encode(&buf, v.Image); err != nil {
			s.respondError(w, http.StatusInternalServerError, "encode failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
	case *resource.ElevationGrid:
		if err := binary.Write(&buf, binary.LittleEndian, v.Values); err != nil {
			s.respondError(w, http.StatusInternalServerError, "encode failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Grid-Width", strconv.Itoa(v.Width))
		w.Header().Set("X-Grid-Height", strconv.Itoa(v.Height))
	default:
		s.respondError(w, http.StatusInternalServerError, "unsupported resource %T", res)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Warn("tile write failed", "op", "tile", "error", err)
	}
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	c := s.pipeline.Cache
	if r.Method == http.MethodDelete {
		n := c.Len()
		c.Clear()
		s.log.Info("cache cleared", "op", "clearCache", "entries", n)
		s.respondJSON(w, http.StatusOK, APIResponse{Success: true, Message: fmt.Sprintf("Cleared %d entries", n)})
		return
	}
	data := map[string]any{
		"cache":     c.Stats(),
		"retrieval": s.pipeline.Monitor.Snapshot(),
		"errors":    s.pipeline.Retriever.ErrorStats(),
	}
	if s.pipeline.Disk != nil {
		data["disk_entries"] = s.pipeline.Disk.Len()
	}
	s.respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}
