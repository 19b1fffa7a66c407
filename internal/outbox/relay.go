// Package outbox relays membership change events from the outbox table to a redis stream.
//
// Delivery is at least once: an event is marked published only after XADD succeeds, so a crash
// between the two republishes it. Consumers dedupe on the event id field.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_outbox_config")

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   organizationdomain.Repository
	Redis  *redis.Client `optional:"true"`
	Config Config        `optional:"true"`
}

type Relay struct {
	log    *zap.Logger
	repo   organizationdomain.Repository
	client *redis.Client
	cfg    Config
}

func New(p Params) (*Relay, error) {
	if p.Log == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	return &Relay{
		log:    p.Log.Named("outbox.relay"),
		repo:   p.Repo,
		client: p.Redis,
		cfg:    p.Config.withDefaults(),
	}, nil
}

// Enabled reports whether a redis client is configured.
func (r *Relay) Enabled() bool {
	return r != nil && r.client != nil
}

// RunOnce publishes one batch and returns how many events went out.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	events, err := r.repo.PendingOutboxEvents(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := make([]snowflake.ID, 0, len(events))
	var publishErr error
	for _, event := range events {
		err := r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: r.cfg.Stream,
			Values: map[string]any{
				"id":         event.ID.String(),
				"topic":      event.Topic,
				"payload":    string(event.Payload),
				"created_at": event.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		}).Err()
		if err != nil {
			// keep ordering: later events wait for the failed one
			publishErr = err
			break
		}
		published = append(published, event.ID)
	}

	if err := r.repo.MarkOutboxPublished(ctx, published); err != nil {
		return 0, errors.Join(publishErr, err)
	}
	return len(published), publishErr
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()

	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Warn("outbox relay run failed", zap.Error(err))
		} else if n > 0 {
			r.log.Debug("outbox events published", zap.Int("count", n), zap.String("stream", r.cfg.Stream))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
