package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Hope_Community/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOutboxRelayDeliversJoinEvents(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	alice := e.user(t, "alice")
	_, err := e.memberships.Join(ctx, alice.ID, c.ID, "0期", "")
	require.NoError(t, err)

	var got []model.MembershipOutbox
	relayer := NewOutboxRelayer(e.outboxRepo, func(_ context.Context, ob *model.MembershipOutbox) error {
		got = append(got, *ob)
		return nil
	}, 10, 3, time.Second, zap.NewNop())

	sent, failed := relayer.DrainOnce(ctx)
	assert.Equal(t, 2, sent)
	assert.Zero(t, failed)
	require.Len(t, got, 2)
	assert.Equal(t, "join", got[0].EventType)
	assert.Empty(t, got[0].Stage)
	assert.Equal(t, "0期", got[1].Stage)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(got[1].Payload), &payload))
	assert.Equal(t, "join", payload["event"])
	assert.EqualValues(t, 2, payload["level"])

	sent, _ = relayer.DrainOnce(ctx)
	assert.Zero(t, sent)
}

func TestOutboxRelayRetriesUntilLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	alice := e.user(t, "alice")
	_, err := e.memberships.Join(ctx, alice.ID, c.ID, "", "")
	require.NoError(t, err)

	attempts := 0
	relayer := NewOutboxRelayer(e.outboxRepo, func(context.Context, *model.MembershipOutbox) error {
		attempts++
		return errors.New("broker down")
	}, 10, 2, time.Second, zap.NewNop())

	_, failed := relayer.DrainOnce(ctx)
	assert.Equal(t, 1, failed)
	_, failed = relayer.DrainOnce(ctx)
	assert.Equal(t, 1, failed)
	// 达到重试上限后不再取出
	_, failed = relayer.DrainOnce(ctx)
	assert.Zero(t, failed)
	assert.Equal(t, 2, attempts)

	rows, err := e.outboxRepo.List(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.OutboxFailed, rows[0].Status)
	assert.Equal(t, 2, rows[0].Retry)
}

func TestLogSender(t *testing.T) {
	err := LogSender(zap.NewNop())(context.Background(), &model.MembershipOutbox{ID: 1, EventType: "leave"})
	assert.NoError(t, err)
}
