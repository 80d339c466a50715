package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/wine-sommelier/internal/config"
	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

// RecommendationsKey is the fixed key holding the latest recommendation set
const RecommendationsKey = "wine_recommendations"

// ResultStore saves and loads the most recent recommendation set.
// There is no history: every save overwrites.
type ResultStore struct {
	kv KV
}

// NewResultStore wraps a key-value backend
func NewResultStore(kv KV) *ResultStore {
	return &ResultStore{kv: kv}
}

// Save overwrites the stored set
func (s *ResultStore) Save(ctx context.Context, wines []types.Wine) error {
	if wines == nil {
		wines = []types.Wine{}
	}
	data, err := json.Marshal(wines)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	if err := s.kv.Set(ctx, RecommendationsKey, data); err != nil {
		return fmt.Errorf("save recommendations: %w", err)
	}

	logger.WithField("wines", len(wines)).Debug("Recommendations saved")
	return nil
}

// Load returns the stored set, or nil when nothing usable is stored.
// Unreadable or corrupt data is logged and treated as absent.
func (s *ResultStore) Load(ctx context.Context) []types.Wine {
	data, ok, err := s.kv.Get(ctx, RecommendationsKey)
	if err != nil {
		logger.WithError(apperrors.NewStoreCorruption("recommendations unreadable", err)).Warn("Ignoring stored recommendations")
		return nil
	}
	if !ok {
		return nil
	}

	var wines []types.Wine
	if err := json.Unmarshal(data, &wines); err != nil {
		logger.WithError(apperrors.NewStoreCorruption("recommendations corrupt", err)).
			WithField("bytes", len(data)).
			Warn("Ignoring stored recommendations")
		return nil
	}
	return wines
}

// Close releases the backend when it holds resources
func (s *ResultStore) Close() error {
	if c, ok := s.kv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open builds a result store from configuration
func Open(cfg config.StoreConfig) (*ResultStore, error) {
	var (
		kv  KV
		err error
	)

	switch cfg.Backend {
	case "memory":
		kv = NewMemoryKV()
	case "file":
		kv, err = NewFileKV(cfg.Path)
	case "sqlite":
		kv, err = OpenSQLite(filepath.Join(cfg.Path, SQLiteFilename))
	case "azure":
		var client BlobClient
		client, err = NewAzureBlobClient(cfg.AzureAccount, cfg.AzureKey)
		if err == nil {
			kv = NewBlobKV(client, cfg.Container)
		}
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"path":    cfg.Path,
	}).Debug("Result store opened")

	return NewResultStore(kv), nil
}
