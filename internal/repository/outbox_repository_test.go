package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/testutil"
)

func outboxStatus(t *testing.T, repo OutboxRepository, id string) model.MessageOutbox {
	t.Helper()
	var row model.MessageOutbox
	require.NoError(t, repo.(*outboxRepository).db.Where("id = ?", id).First(&row).Error)
	return row
}

func TestOutboxRepository_ClaimLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	msgs := NewMessageRepository(db)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, msgs.Create(ctx, &model.Message{ItemID: "x", SenderID: "alice", ReceiverID: "bob", Body: "m"}))
	}

	batch, err := repo.Claim(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	rest, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	none, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, repo.MarkDone(ctx, batch[0].ID))
	assert.Equal(t, model.OutboxDone, outboxStatus(t, repo, batch[0].ID).Status)

	require.NoError(t, repo.Release(ctx, batch[1].ID))
	released := outboxStatus(t, repo, batch[1].ID)
	assert.Equal(t, model.OutboxPending, released.Status)
	assert.Equal(t, 1, released.Attempts)
	assert.Nil(t, released.ClaimedAt)

	again, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, batch[1].ID, again[0].ID)
}

func TestOutboxRepository_ReclaimAndPurge(t *testing.T) {
	db := testutil.NewDB(t)
	msgs := NewMessageRepository(db)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	require.NoError(t, msgs.Create(ctx, &model.Message{ItemID: "x", SenderID: "alice", ReceiverID: "bob", Body: "stuck"}))
	require.NoError(t, msgs.Create(ctx, &model.Message{ItemID: "x", SenderID: "alice", ReceiverID: "bob", Body: "done"}))
	require.NoError(t, msgs.Create(ctx, &model.Message{ItemID: "x", SenderID: "alice", ReceiverID: "bob", Body: "failed"}))

	batch, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.NoError(t, repo.MarkDone(ctx, batch[1].ID))
	require.NoError(t, repo.Fail(ctx, batch[2].ID))
	failed := outboxStatus(t, repo, batch[2].ID)
	assert.Equal(t, model.OutboxFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)

	// nothing is old enough yet
	n, err := repo.Reclaim(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Reclaim(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.OutboxPending, outboxStatus(t, repo, batch[0].ID).Status)

	n, err = repo.Purge(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var left int64
	require.NoError(t, db.Model(&model.MessageOutbox{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)
}
