package orchestrator

import (
	"context"
	"database/sql"

	"github.com/lockplane/schemasync/internal/database"
	"github.com/lockplane/schemasync/internal/database/postgres"
	"github.com/lockplane/schemasync/internal/executor"
)

type directDB struct {
	db   *sql.DB
	conn executor.Conn
}

// DialPostgres opens a single-connection pool with lib/pq.
func DialPostgres(ctx context.Context, cfg database.ConnectionConfig) (Direct, error) {
	db, err := postgres.NewDriver().OpenConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &directDB{db: db, conn: executor.FromDB(db)}, nil
}

func (d *directDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (executor.Tx, error) {
	return d.conn.BeginTx(ctx, opts)
}

func (d *directDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

func (d *directDB) Close() error {
	return d.db.Close()
}
