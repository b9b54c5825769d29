// Package store provides the persistent tiers consulted before the network.
package store

import (
	"context"

	"github.com/geoyee/globetile/internal/model"
)

// Store is a persistent tier of raw tile payloads keyed by cache key.
type Store interface {
	Name() string
	// Get returns the payload for key. A miss is (nil, false, nil).
	Get(ctx context.Context, tile model.Tile, key string) ([]byte, bool, error)
	Put(ctx context.Context, tile model.Tile, key string, data []byte) error
	Close() error
}
