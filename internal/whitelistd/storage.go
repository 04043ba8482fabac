package whitelistd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/whitelist/internal/store/filestore"
	"github.com/MarkoPoloResearchLab/whitelist/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/whitelist/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/whitelist/internal/store/redisstore"
	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSQLiteFile = "whitelist.db"

// OpenStorage builds the store provider selected by cfg.StorageDriver. The
// returned cleanup releases the underlying connections.
func OpenStorage(ctx context.Context, cfg Config) (whitelist.StoreProvider, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StorageDriver {
	case DriverFile:
		provider, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return provider, noop, nil
	case DriverSQLite, DriverPostgres:
		return openGormStorage(ctx, cfg)
	case DriverPGX:
		pool, err := pgxpool.New(ctx, cfg.StorageDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() error { pool.Close(); return nil }, nil
	case DriverRedis:
		options, err := redis.ParseURL(cfg.StorageDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		var storeOptions []redisstore.Option
		if cfg.RedisKeyPrefix != "" {
			storeOptions = append(storeOptions, redisstore.WithKeyPrefix(cfg.RedisKeyPrefix))
		}
		return redisstore.New(client, storeOptions...), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func openGormStorage(ctx context.Context, cfg Config) (whitelist.StoreProvider, func() error, error) {
	db, cleanup, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

func openDatabase(cfg Config) (*gorm.DB, func() error, error) {
	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.StorageDriver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.StorageDSN), gormConfig)
	case DriverSQLite:
		sqlitePath, resolveErr := resolveSQLitePath(cfg.StorageDSN, cfg.DataDir)
		if resolveErr != nil {
			return nil, nil, resolveErr
		}
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, sqlDB.Close, nil
}

// resolveSQLitePath accepts sqlite:// URLs and bare paths; an empty dsn places
// the database inside dataDir.
func resolveSQLitePath(dsn string, dataDir string) (string, error) {
	path := strings.TrimSpace(dsn)
	if path == "" {
		path = filepath.Join(dataDir, defaultSQLiteFile)
	}
	if strings.HasPrefix(path, "sqlite://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path = parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = filepath.Join(dataDir, defaultSQLiteFile)
		}
	}
	return normalizeSQLitePath(path)
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}
