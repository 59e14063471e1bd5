package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/taskboard/apiserver/config"
	_ "modernc.org/sqlite"
)

const (
	postgresDriver      = "postgres"
	sqliteDriver        = "sqlite"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
	sqlitePragmas       = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

// Open connects to the configured database and verifies it with a ping.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	driver, dsn, err := driverAndDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == sqliteDriver {
		// SQLite allows a single writer; serialising connections avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxIdleTime(defaultConnMaxIdle)
		db.SetConnMaxLifetime(defaultConnMaxLife)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetMaxOpenConns(defaultMaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// PostgresURL builds a postgres:// connection URL from config. DATABASE_URL wins when set.
func PostgresURL(cfg config.Config) string {
	if strings.TrimSpace(cfg.Database.URL) != "" {
		return cfg.Database.URL
	}

	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		User:   url.UserPassword(cfg.Database.User, cfg.Database.Password),
		Path:   cfg.Database.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func driverAndDSN(cfg config.Config) (string, string, error) {
	switch cfg.Database.Driver {
	case "", config.DriverPostgres:
		return postgresDriver, PostgresURL(cfg), nil
	case config.DriverSQLite:
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return "", "", fmt.Errorf("sqlite database path is required")
		}
		return sqliteDriver, "file:" + cfg.Database.Path + "?" + sqlitePragmas, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
