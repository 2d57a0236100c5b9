package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zapadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

const dropSchema = `drop table if exists competitor, coach, club, category cascade;`

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

// PoolCreation panics if the pool can't be configured or reached.
func PoolCreation(ctx context.Context, logger *zap.Logger, conf *config.Entity) *pgxpool.Pool {
	pool, err := Connect(ctx, logger, conf.DB.DSN(), conf.DB)
	if err != nil {
		logger.Panic("Err connection to DB", zap.Error(err))
	}

	return pool
}

func Connect(ctx context.Context, logger *zap.Logger, dsn string, limits config.Database) (*pgxpool.Pool, error) {
	dbConf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("poolCreation failed: %w", err)
	}
	dbConf.ConnConfig.Logger = zapadapter.NewLogger(logger)
	dbConf.ConnConfig.LogLevel = pgx.LogLevelError
	dbConf.MaxConnIdleTime = time.Second * 10
	if limits.MaxOpenConns > 0 {
		dbConf.MaxConns = limits.MaxOpenConns
	}
	if limits.MinConns > 0 {
		dbConf.MinConns = limits.MinConns
	}
	if limits.ConnLifeTime > 0 {
		dbConf.MaxConnLifetime = time.Duration(limits.ConnLifeTime) * time.Minute
	}

	pool, err := pgxpool.ConnectConfig(ctx, dbConf)
	if err != nil {
		return nil, fmt.Errorf("poolCreation failed: %w", err)
	}

	return pool, nil
}

// Migrate creates the tables if they are missing; reset drops them first.
func (p *Postgres) Migrate(ctx context.Context, reset bool) error {
	if reset {
		if _, err := p.Pool.Exec(ctx, dropSchema); err != nil {
			return fmt.Errorf("Migrate drop failed: %w", err)
		}
	}

	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("Migrate failed: %w", err)
	}

	return nil
}

func (p *Postgres) Close() {
	p.Pool.Close()
}
