package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/lockplane/schemasync/internal/database"
)

// ErrCloseTimeout is returned when a connection does not close in time.
var ErrCloseTimeout = errors.New("timed out closing database connection")

// Driver opens direct connections to a Postgres destination.
type Driver struct {
}

// NewDriver creates a new PostgreSQL driver
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "postgres"
}

// OpenConnection opens a pool capped at one connection and pings it within
// the connect timeout.
func (d *Driver) OpenConnection(ctx context.Context, cfg database.ConnectionConfig) (*sql.DB, error) {
	cfg = cfg.WithDefaults()

	dsn, err := ConnectionString(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = CloseWithTimeout(db, cfg.CloseTimeout)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConnectionString adds connect_timeout, sslmode and application_name to a
// postgres:// URL unless it already sets them.
func ConnectionString(cfg database.ConnectionConfig) (string, error) {
	if cfg.PostgresUrl == "" {
		return "", fmt.Errorf("database URL is empty")
	}

	u, err := url.Parse(cfg.PostgresUrl)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported database URL scheme %q", u.Scheme)
	}

	q := u.Query()
	if q.Get("connect_timeout") == "" && cfg.ConnectTimeout > 0 {
		secs := int(cfg.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	if q.Get("sslmode") == "" && cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if q.Get("application_name") == "" && cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// CloseWithTimeout closes c, giving up after timeout. The close keeps running
// in the background if it times out.
func CloseWithTimeout(c io.Closer, timeout time.Duration) error {
	if c == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = database.DefaultCloseTimeout
	}

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrCloseTimeout
	}
}
