package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/configuration"
)

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("connect db: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, fmt.Errorf("ping db: %w", err))
	}
	return pool, nil
}

// withDB runs fn with a pool-bound context and closes the pool afterwards.
func withDB(ctx context.Context, fn func(ctx context.Context) error) error {
	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(composables.WithPool(ctx, pool))
}
