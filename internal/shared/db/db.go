package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// O archive roda fora do caminho quente e com timeouts curtos por operação;
// o pool fica pequeno de propósito.
const (
	maxOpenConns = 8
	maxIdleTime  = 5 * time.Minute
	pingTimeout  = 3 * time.Second
)

// ConnectPostgres abre o pool do archive e valida a conexão no boot
func ConnectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetConnMaxIdleTime(maxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
