// Package feed announces local event changes on a redis channel so other
// devices of the same owner can refresh.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

const Channel = "timeline:events"

type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to the redis server at url.
func New(ctx context.Context, url string, logger *zap.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Publisher{client: client, logger: logger}, nil
}

func (p *Publisher) Publish(ctx context.Context, change models.Change) error {
	payload, err := encode(change)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}

	p.logger.Debug("Change published", zap.String("channel", Channel), zap.String("kind", string(change.Kind)))
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func encode(change models.Change) (string, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return "", fmt.Errorf("failed to encode change: %w", err)
	}
	return string(data), nil
}
