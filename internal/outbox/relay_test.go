package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quickcart/internal/migration"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/quickcart/internal/organization/repository"
	"github.com/smallbiznis/quickcart/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	relay  *Relay
	repo   organizationdomain.Repository
	db     *gorm.DB
	node   *snowflake.Node
	client *redis.Client
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T, batch int) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := organizationrepository.NewRepository(conn)
	relay, err := New(Params{
		Log:    zaptest.NewLogger(t),
		Repo:   repo,
		Redis:  client,
		Config: Config{BatchSize: batch, Stream: "test.memberships"},
	})
	require.NoError(t, err)

	return &fixture{relay: relay, repo: repo, db: conn, node: node, client: client, redis: mr}
}

func (f *fixture) enqueue(t *testing.T, topic, payload string) snowflake.ID {
	t.Helper()
	event := organizationdomain.OutboxEvent{
		ID:        f.node.Generate(),
		Topic:     topic,
		Payload:   []byte(payload),
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.repo.InsertOutboxEvent(context.Background(), event))
	return event.ID
}

func (f *fixture) pending(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&organizationdomain.OutboxEvent{}).Where("published = ?", false).Count(&count).Error)
	return count
}

func TestRunOncePublishesInOrder(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	first := f.enqueue(t, organizationdomain.TopicMembershipGranted, `{"user_id":"1"}`)
	second := f.enqueue(t, organizationdomain.TopicMembershipRevoked, `{"user_id":"1"}`)

	n, err := f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, f.pending(t))

	messages, err := f.client.XRange(ctx, "test.memberships", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, first.String(), messages[0].Values["id"])
	assert.Equal(t, organizationdomain.TopicMembershipGranted, messages[0].Values["topic"])
	assert.Equal(t, `{"user_id":"1"}`, messages[0].Values["payload"])
	assert.Equal(t, second.String(), messages[1].Values["id"])

	// nothing left to send
	n, err = f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceRespectsBatchSize(t *testing.T) {
	f := newFixture(t, 2)
	for i := 0; i < 3; i++ {
		f.enqueue(t, organizationdomain.TopicMembershipGranted, `{}`)
	}

	n, err := f.relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1), f.pending(t))
}

func TestRunOnceKeepsEventsWhenRedisIsDown(t *testing.T) {
	f := newFixture(t, 10)
	f.enqueue(t, organizationdomain.TopicMembershipGranted, `{}`)
	f.redis.Close()

	n, err := f.relay.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), f.pending(t))
}

func TestDisabledRelayIsNoop(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	relay, err := New(Params{
		Log:  zaptest.NewLogger(t),
		Repo: organizationrepository.NewRepository(conn),
	})
	require.NoError(t, err)
	assert.False(t, relay.Enabled())

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
