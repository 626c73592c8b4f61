package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adot20/product-search-backend/internal/domain"
)

// cachedProduct is the persisted form of a product record.
type cachedProduct struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	Query      string `gorm:"type:text;not null;uniqueIndex:idx_search_cache_query_site"`
	Site       string `gorm:"type:varchar(32);not null;uniqueIndex:idx_search_cache_query_site"`
	Title      string `gorm:"type:text;not null"`
	Price      string `gorm:"type:varchar(64);not null"`
	Rating     string `gorm:"type:varchar(16)"`
	ImageURL   string `gorm:"type:text"`
	ProductURL string `gorm:"type:text;not null"`
	SearchURL  string `gorm:"type:text;not null"`
	SizeHint   string `gorm:"type:varchar(64)"`
	StoredAt   int64  `gorm:"not null;index"` // unix milliseconds
}

func (cachedProduct) TableName() string {
	return "search_cache"
}

func (c *cachedProduct) toRecord() *domain.ProductRecord {
	return &domain.ProductRecord{
		Title:      c.Title,
		Price:      c.Price,
		Rating:     c.Rating,
		ImageURL:   c.ImageURL,
		ProductURL: c.ProductURL,
		SearchURL:  c.SearchURL,
		SizeHint:   c.SizeHint,
	}
}

// SQLStore persists product records in a relational database through gorm.
// Rows survive restarts; freshness is enforced at read time.
type SQLStore struct {
	db     *gorm.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// OpenSQLStore connects to driver ("sqlite" or "postgres") at dsn and
// migrates the cache table.
func OpenSQLStore(ctx context.Context, driver, dsn string, opts Options, logger *zap.Logger) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&cachedProduct{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate cache table: %w", err)
	}

	return NewSQLStore(db, opts, logger), nil
}

// NewSQLStore wraps an existing, already migrated connection.
func NewSQLStore(db *gorm.DB, opts Options, logger *zap.Logger) *SQLStore {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: logger.Named("cache"),
	}
}

// Get returns the record for (query, site) if it was stored less than TTL ago
func (s *SQLStore) Get(ctx context.Context, query string, site domain.SiteID) (*domain.ProductRecord, error) {
	var row cachedProduct
	err := s.db.WithContext(ctx).
		Where("query = ? AND site = ? AND stored_at > ?", query, string(site), s.cutoff()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return row.toRecord(), nil
}

// Put upserts the record for (query, site)
func (s *SQLStore) Put(ctx context.Context, query string, site domain.SiteID, record *domain.ProductRecord) error {
	if record == nil {
		return nil
	}

	row := cachedProduct{
		ID:         uuid.NewString(),
		Query:      query,
		Site:       string(site),
		Title:      record.Title,
		Price:      record.Price,
		Rating:     record.Rating,
		ImageURL:   record.ImageURL,
		ProductURL: record.ProductURL,
		SearchURL:  record.SearchURL,
		SizeHint:   record.SizeHint,
		StoredAt:   s.now().UnixMilli(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query"}, {Name: "site"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Purge deletes expired rows and reports how many were removed
func (s *SQLStore) Purge(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).
		Where("stored_at <= ?", s.cutoff()).
		Delete(&cachedProduct{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Debug("purged expired cache rows", zap.Int64("rows", res.RowsAffected))
	}
	return int(res.RowsAffected), nil
}

// Close releases the underlying connection pool
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) cutoff() int64 {
	return s.now().Add(-s.ttl).UnixMilli()
}
