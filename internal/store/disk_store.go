package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/metrics"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/util"
)

const indexVersion = "1.0"

// DiskStore keeps payloads as files under a directory, laid out by format,
// with a JSON index of stored and failed keys.
type DiskStore struct {
	saveDir     string
	format      string
	ext         string
	indexFile   string
	urlTemplate string

	mu    sync.RWMutex
	index *model.StoreIndex
	log   *slog.Logger
}

// NewDiskStore opens a disk tier and loads its index. An empty indexFile
// keeps the index in memory only.
func NewDiskStore(saveDir, format, indexFile, urlTemplate string) (*DiskStore, error) {
	if saveDir == "" {
		return nil, errors.New("disk store requires a directory")
	}
	if _, err := util.GetSavePath(saveDir, format, 0, 0, 0, ""); err != nil {
		return nil, err
	}
	if err := util.EnsureDirExists(saveDir); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &DiskStore{
		saveDir:     saveDir,
		format:      format,
		ext:         util.GetFileExtension(urlTemplate, ""),
		indexFile:   indexFile,
		urlTemplate: urlTemplate,
		log:         logger.Component("store").With("tier", "disk"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func newIndex() *model.StoreIndex {
	return &model.StoreIndex{
		Version:   indexVersion,
		Completed: make(map[string]model.TileInfo),
		Failed:    make(map[string]string),
		UpdatedAt: time.Now(),
	}
}

func (s *DiskStore) indexPath() string {
	return filepath.Join(s.saveDir, s.indexFile)
}

func (s *DiskStore) load() error {
	s.index = newIndex()
	if s.indexFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store index: %w", err)
	}
	var index model.StoreIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("parse store index: %w", err)
	}
	if index.Completed == nil {
		index.Completed = make(map[string]model.TileInfo)
	}
	if index.Failed == nil {
		index.Failed = make(map[string]string)
	}
	s.index = &index
	s.log.Info("store index loaded", "op", "load",
		"completed", len(index.Completed), "failed", len(index.Failed))
	return nil
}

func (s *DiskStore) Name() string { return "disk" }

// Path returns the file path of a tile payload.
func (s *DiskStore) Path(tile model.Tile) (string, error) {
	return util.GetSavePath(s.saveDir, s.format, tile.Level, tile.Row, tile.Column, s.ext)
}

// Get reads a stored payload. Entries whose file vanished or changed size
// are dropped from the index. Unindexed files at the tile's path are adopted.
func (s *DiskStore) Get(_ context.Context, tile model.Tile, key string) ([]byte, bool, error) {
	s.mu.RLock()
	info, ok := s.index.Completed[key]
	s.mu.RUnlock()
	if !ok {
		return s.adopt(tile, key)
	}

	data, err := os.ReadFile(info.FilePath)
	if err != nil || int64(len(data)) != info.FileSize {
		s.mu.Lock()
		delete(s.index.Completed, key)
		s.mu.Unlock()
		metrics.StoreRequestsTotal.WithLabelValues("disk", "stale").Inc()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("read %s: %w", info.FilePath, err)
		}
		return nil, false, nil
	}
	metrics.StoreRequestsTotal.WithLabelValues("disk", "hit").Inc()
	return data, true, nil
}

func (s *DiskStore) adopt(tile model.Tile, key string) ([]byte, bool, error) {
	path, err := s.Path(tile)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		metrics.StoreRequestsTotal.WithLabelValues("disk", "miss").Inc()
		return nil, false, nil
	}
	s.record(tile, key, path, int64(len(data)))
	metrics.StoreRequestsTotal.WithLabelValues("disk", "hit").Inc()
	return data, true, nil
}

// Put writes the payload and records it in the index.
func (s *DiskStore) Put(_ context.Context, tile model.Tile, key string, data []byte) error {
	path, err := s.Path(tile)
	if err != nil {
		return err
	}
	if err := util.EnsureDirExists(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.record(tile, key, path, int64(len(data)))
	return nil
}

func (s *DiskStore) record(tile model.Tile, key, path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Completed[key] = model.TileInfo{
		Level:    tile.Level,
		Row:      tile.Row,
		Column:   tile.Column,
		FilePath: path,
		FileSize: size,
		Stored:   time.Now(),
	}
	delete(s.index.Failed, key)
}

// MarkFailed records a retrieval failure for key.
func (s *DiskStore) MarkFailed(key, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Failed[key] = reason
}

// Failed returns a copy of the recorded failures.
func (s *DiskStore) Failed() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.index.Failed))
	for k, v := range s.index.Failed {
		out[k] = v
	}
	return out
}

// Len is the number of completed entries in the index.
func (s *DiskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index.Completed)
}

// Flush persists the index.
func (s *DiskStore) Flush() error {
	if s.indexFile == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index.Version = indexVersion
	s.index.URLTemplate = s.urlTemplate
	s.index.SaveDir = s.saveDir
	s.index.Format = s.format
	s.index.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0644); err != nil {
		return fmt.Errorf("write store index: %w", err)
	}
	return nil
}

// Close saves the index.
func (s *DiskStore) Close() error {
	return s.Flush()
}
