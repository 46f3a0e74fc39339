// Package postgres persists encounters, the question bank, and student
// progression in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/classquest/internal/config"
)

// Pool is the arena server's connection pool. Every connection reports the
// owning instance as its application_name so pg_stat_activity tells cluster
// members apart.
type Pool struct {
	pool *pgxpool.Pool
}

// Repositories bundles the stores built on one pool.
type Repositories struct {
	Encounters  *EncounterRepository
	Questions   *QuestionRepository
	Progression *ProgressionStore
}

// poolConfig translates the database section into a pgxpool config.
// MinConns is capped at MaxConns.
func poolConfig(cfg config.DatabaseConfig, instanceID string) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = min(cfg.MinConns, poolCfg.MaxConns)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if instanceID != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = "classquest:" + instanceID
	}
	return poolCfg, nil
}

// NewPool connects to the database and verifies it answers.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a pinged Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, instanceID string) (*Pool, error) {
	poolCfg, err := poolConfig(cfg, instanceID)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	return &Pool{pool: pool}, nil
}

// Repositories builds the encounter, question, and progression stores.
func (p *Pool) Repositories() Repositories {
	return Repositories{
		Encounters:  NewEncounterRepository(p.pool),
		Questions:   NewQuestionRepository(p.pool),
		Progression: NewProgressionStore(p.pool),
	}
}

// Health pings the database; it backs the gRPC health status.
//
// Postcondition: Returns nil if the database responds within timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
