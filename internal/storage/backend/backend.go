// ABOUTME: Opens the conversation and document stores selected by configuration
// ABOUTME: The caller owns the returned Stores and must Close them
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/harper/twin/internal/charm"
	"github.com/harper/twin/internal/config"
	"github.com/harper/twin/internal/storage"
	"github.com/harper/twin/internal/storage/postgres"
	"github.com/harper/twin/internal/storage/sqlite"
)

// Stores bundles the persistence handles a process needs
type Stores struct {
	Conversations storage.ConversationStore
	Documents     storage.DocumentStore
	Kind          string
}

// Open connects to the backend named by cfg.Store
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		path := cfg.DBPath
		if path == "" {
			path = sqlite.DefaultDBPath()
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", path).Msg("sqlite store opened")
		return &Stores{
			Conversations: sqlite.NewConversationStore(db),
			Documents:     sqlite.NewDocumentStore(db),
			Kind:          config.StoreSQLite,
		}, nil

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Conversations: postgres.NewConversationStore(pool),
			Documents:     postgres.NewDocumentStore(pool),
			Kind:          config.StorePostgres,
		}, nil

	case config.StoreCharm:
		client, err := charm.NewClient(charm.ConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		log.Debug().Str("host", client.Host()).Msg("charm store opened")
		return &Stores{
			Conversations: storage.NewKVConversationStore(client),
			Documents:     storage.NewKVDocumentStore(client),
			Kind:          config.StoreCharm,
		}, nil
	}

	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// OpenInMemory returns sqlite-backed stores that vanish on Close
func OpenInMemory() (*Stores, error) {
	db, err := sqlite.OpenInMemory()
	if err != nil {
		return nil, err
	}
	return &Stores{
		Conversations: sqlite.NewConversationStore(db),
		Documents:     sqlite.NewDocumentStore(db),
		Kind:          config.StoreSQLite,
	}, nil
}

// Close releases both stores. Shared handles tolerate the double close.
func (s *Stores) Close() error {
	return errors.Join(s.Conversations.Close(), s.Documents.Close())
}
