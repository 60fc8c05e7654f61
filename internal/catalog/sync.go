package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"facturas/internal/config"
	"facturas/internal/storage"
)

const (
	metaLastSync     = "catalog.last_sync"
	metaLastImport   = "catalog.last_import"
	metaProductCount = "catalog.product_count"
)

type SyncService struct {
	db     *storage.DB
	client *Client
	logger *zap.Logger
}

func NewSyncService(db *storage.DB, cfg config.Config, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{db: db, client: NewClient(cfg, logger), logger: logger.Named("catalog")}
}

// Sync pulls the full product listing and upserts it into storage.
func (s *SyncService) Sync(ctx context.Context) (int, error) {
	start := time.Now()
	products, err := s.client.ListProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}
	if err := s.db.UpsertProducts(products); err != nil {
		return 0, fmt.Errorf("store products: %w", err)
	}
	s.stamp(metaLastSync, len(products))
	s.logger.Info("catalog synced",
		zap.Int("products", len(products)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return len(products), nil
}

// Import loads a spreadsheet snapshot into storage.
func (s *SyncService) Import(path string) (int, error) {
	products, err := LoadCatalogXLSX(path)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertProducts(products); err != nil {
		return 0, fmt.Errorf("store products: %w", err)
	}
	s.stamp(metaLastImport, len(products))
	s.logger.Info("catalog imported", zap.String("path", path), zap.Int("products", len(products)))
	return len(products), nil
}

func (s *SyncService) stamp(key string, count int) {
	if err := s.db.SetMetadata(key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("metadata write failed", zap.String("key", key), zap.Error(err))
	}
	if err := s.db.SetMetadata(metaProductCount, strconv.Itoa(count)); err != nil {
		s.logger.Warn("metadata write failed", zap.String("key", metaProductCount), zap.Error(err))
	}
}
