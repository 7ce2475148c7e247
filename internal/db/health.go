package db

import (
	"context"
	"fmt"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthProbe reports whether the database answers a ping.
type HealthProbe struct {
	pool Pinger
}

func NewHealthProbe(pool Pinger) *HealthProbe {
	return &HealthProbe{pool: pool}
}

func (p *HealthProbe) Name() string { return "database" }

func (p *HealthProbe) Check(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
