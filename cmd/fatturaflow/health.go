package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fatturaflow/fatturaflow/internal/adapter/litellm"
	ffnats "github.com/fatturaflow/fatturaflow/internal/adapter/nats"
)

type pgChecker struct {
	pool *pgxpool.Pool
}

func (c pgChecker) Name() string { return "postgres" }

func (c pgChecker) Healthy(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

type natsChecker struct {
	queue *ffnats.Queue
}

func (c natsChecker) Name() string { return "nats" }

func (c natsChecker) Healthy(context.Context) error {
	if !c.queue.IsConnected() {
		return errors.New("not connected")
	}
	return nil
}

type llmChecker struct {
	client *litellm.Client
}

func (c llmChecker) Name() string { return "litellm" }

func (c llmChecker) Healthy(ctx context.Context) error {
	if ok, err := c.client.Health(ctx); !ok {
		return fmt.Errorf("proxy unhealthy (breaker %s): %w", c.client.BreakerState(), err)
	}
	return nil
}
