// Package sqlcache is the durable coordinate cache tier backed by a SQL table
// through GORM. SQLite is the default; MySQL is used when a DSN is configured.
package sqlcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteFile is the database file created inside the cache directory.
const SQLiteFile = "geocode-cache.db"

// Entry is the GORM model for the geocode_cache table. Rows are keyed by the
// SHA-256 of the normalized address so addresses of any length fit the index.
type Entry struct {
	Hash      string    `gorm:"column:address_hash;primaryKey;size:64"`
	Address   string    `gorm:"column:address;type:text;not null"`
	Lat       float64   `gorm:"column:lat;not null"`
	Lng       float64   `gorm:"column:lng;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName overrides GORM's pluralized default.
func (Entry) TableName() string {
	return "geocode_cache"
}

// Store implements domain.CacheTier on a SQL table.
type Store struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// New wraps an open GORM handle. The table must exist; see Migrate.
func New(db *gorm.DB, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{db: db, clock: clock}
}

// OpenSQLite opens (creating if needed) the SQLite cache file under dir and
// migrates the schema.
func OpenSQLite(dir string, clock clockwork.Clock) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	dsn := "file:" + filepath.Join(dir, SQLiteFile) + "?_busy_timeout=5000&_journal_mode=WAL"

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	// SQLite allows a single writer; concurrent upserts share one connection.
	sqlDB.SetMaxOpenConns(1)

	s := New(db, clock)
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenMySQL connects to MySQL with the given DSN and migrates the schema.
// DSN format: user:password@tcp(host:port)/dbname?parseTime=true
func OpenMySQL(dsn string, clock clockwork.Clock) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open mysql cache: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql cache: %w", err)
	}

	s := New(db, clock)
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
}

// Migrate creates or updates the geocode_cache table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate geocode_cache: %w", err)
	}
	return nil
}

// Get looks up the coordinates stored for a normalized address.
func (s *Store) Get(ctx context.Context, key string) (domain.Coordinates, bool, error) {
	e, ok, err := s.Lookup(ctx, key)
	if err != nil || !ok {
		return domain.Coordinates{}, false, err
	}
	return domain.Coordinates{Lat: e.Lat, Lng: e.Lng}, true, nil
}

// Lookup returns the full cache entry, including its last update time.
func (s *Store) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("address_hash = ?", hashKey(key)).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query geocode_cache: %w", err)
	}
	return e, true, nil
}

// Put upserts the coordinates for key and stamps the row with the current time.
func (s *Store) Put(ctx context.Context, key string, c domain.Coordinates) error {
	e := Entry{
		Hash:      hashKey(key),
		Address:   key,
		Lat:       c.Lat,
		Lng:       c.Lng,
		UpdatedAt: s.clock.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "lat", "lng", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("upsert geocode_cache: %w", err)
	}
	return nil
}

func hashKey(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:])
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
