package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Key columns compare bytewise (COLLATE "C" / ascii_bin) so keyset pagination matches the
// lexical order of the sort keys.
//
// Both tables carry the primary key (pk, sk) and one secondary index (gsi1pk, gsi1sk):
// CATEGORY#<category> for products, USER#<userId> for orders.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		pk          VARCHAR(64)  CHARACTER SET ascii COLLATE ascii_bin NOT NULL PRIMARY KEY,
		sk          VARCHAR(32)  NOT NULL,
		gsi1pk      VARCHAR(128) NOT NULL,
		gsi1sk      CHAR(30)     CHARACTER SET ascii COLLATE ascii_bin NOT NULL,
		id          CHAR(36)     NOT NULL,
		name        VARCHAR(200) NOT NULL,
		description TEXT         NOT NULL,
		category    VARCHAR(64)  NOT NULL,
		price       BIGINT       NOT NULL,
		quantity    INT          NOT NULL,
		sku         VARCHAR(50)  NOT NULL,
		image_url   VARCHAR(500) NOT NULL DEFAULT '',
		created_at  DATETIME(6)  NOT NULL,
		updated_at  DATETIME(6)  NOT NULL,
		CONSTRAINT chk_products_quantity CHECK (quantity >= 0),
		KEY idx_products_gsi1 (gsi1pk, gsi1sk, pk)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		pk           VARCHAR(64)  CHARACTER SET ascii COLLATE ascii_bin NOT NULL PRIMARY KEY,
		sk           VARCHAR(32)  NOT NULL,
		gsi1pk       VARCHAR(160) COLLATE utf8mb4_bin NOT NULL,
		gsi1sk       CHAR(30)     CHARACTER SET ascii COLLATE ascii_bin NOT NULL,
		id           CHAR(36)     NOT NULL,
		user_id      VARCHAR(128) NOT NULL,
		user_email   VARCHAR(320) NOT NULL,
		items        JSON         NOT NULL,
		total_amount BIGINT       NOT NULL,
		status       VARCHAR(16)  NOT NULL,
		created_at   DATETIME(6)  NOT NULL,
		updated_at   DATETIME(6)  NOT NULL,
		KEY idx_orders_gsi1 (gsi1pk, gsi1sk, pk)
	)`,
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS products (
		pk          TEXT COLLATE "C" PRIMARY KEY,
		sk          TEXT        NOT NULL,
		gsi1pk      TEXT COLLATE "C" NOT NULL,
		gsi1sk      TEXT COLLATE "C" NOT NULL,
		id          TEXT        NOT NULL,
		name        TEXT        NOT NULL,
		description TEXT        NOT NULL,
		category    TEXT        NOT NULL,
		price       BIGINT      NOT NULL,
		quantity    INT         NOT NULL CHECK (quantity >= 0),
		sku         TEXT        NOT NULL,
		image_url   TEXT        NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		pk           TEXT COLLATE "C" PRIMARY KEY,
		sk           TEXT        NOT NULL,
		gsi1pk       TEXT COLLATE "C" NOT NULL,
		gsi1sk       TEXT COLLATE "C" NOT NULL,
		id           TEXT        NOT NULL,
		user_id      TEXT        NOT NULL,
		user_email   TEXT        NOT NULL,
		items        JSONB       NOT NULL,
		total_amount BIGINT      NOT NULL,
		status       TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_gsi1 ON products (gsi1pk, gsi1sk DESC, pk DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_gsi1 ON orders (gsi1pk, gsi1sk DESC, pk DESC);
`

func MigrateMySQL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range mysqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate mysql: %w", err)
		}
	}
	return nil
}

func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	config.MaxConns = 50
	config.MinConns = 5

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
