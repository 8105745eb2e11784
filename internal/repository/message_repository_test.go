package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/testutil"
)

func newMsg(item, from, to, body string) *model.Message {
	return &model.Message{ItemID: item, SenderID: from, ReceiverID: to, Body: body}
}

func TestMessageRepository_CreateWritesOutbox(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	msg := newMsg("x", "alice", "bob", "Is this still available?")
	require.NoError(t, repo.Create(ctx, msg))
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	var out []model.MessageOutbox
	require.NoError(t, db.Find(&out).Error)
	require.Len(t, out, 1)
	assert.Equal(t, msg.ID, out[0].MessageID)
	assert.Equal(t, model.OutboxPending, out[0].Status)

	var stored []model.Message
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Read)
	assert.Equal(t, "Is this still available?", stored[0].Body)
}

func TestMessageRepository_CreateMonotonicPerConversation(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db).(*messageRepository)
	ctx := context.Background()

	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	var msgs []*model.Message
	for i, from := range []string{"alice", "bob", "alice"} {
		to := "bob"
		if from == "bob" {
			to = "alice"
		}
		m := newMsg("x", from, to, string(rune('a'+i)))
		require.NoError(t, repo.Create(ctx, m))
		msgs = append(msgs, m)
	}
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
	assert.True(t, msgs[2].CreatedAt.After(msgs[1].CreatedAt))

	// a different conversation is not pushed forward
	other := newMsg("y", "alice", "bob", "other item")
	require.NoError(t, repo.Create(ctx, other))
	assert.True(t, other.CreatedAt.Equal(frozen))

	thread, err := repo.ListThread(ctx, "x", "bob", "alice")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	for i := range msgs {
		assert.Equal(t, msgs[i].ID, thread[i].ID)
	}
}

func TestMessageRepository_ConcurrentCreateStaysMonotonic(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db).(*messageRepository)
	ctx := context.Background()

	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(ctx, newMsg("x", from, to, "race"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	thread, err := repo.ListThread(ctx, "x", "alice", "bob")
	require.NoError(t, err)
	require.Len(t, thread, n)
	for i := 1; i < n; i++ {
		assert.True(t, thread[i].CreatedAt.After(thread[i-1].CreatedAt), "timestamp %d not after %d", i, i-1)
	}

	// sqlite 无需 advisory lock
	assert.NoError(t, lockConversation(db, "x:alice:bob"))
}

func TestMessageRepository_ListThreadSymmetric(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newMsg("x", "alice", "bob", "hi")))
	require.NoError(t, repo.Create(ctx, newMsg("x", "bob", "alice", "hello")))
	require.NoError(t, repo.Create(ctx, newMsg("x", "carol", "bob", "me too")))
	require.NoError(t, repo.Create(ctx, newMsg("y", "alice", "bob", "other item")))

	ab, err := repo.ListThread(ctx, "x", "alice", "bob")
	require.NoError(t, err)
	ba, err := repo.ListThread(ctx, "x", "bob", "alice")
	require.NoError(t, err)

	require.Len(t, ab, 2)
	assert.Equal(t, ab, ba)
	assert.Equal(t, "hi", ab[0].Body)
	assert.Equal(t, "hello", ab[1].Body)
}

func TestMessageRepository_MarkReadOnlyReceiver(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	toBob := newMsg("x", "alice", "bob", "for bob")
	toAlice := newMsg("x", "bob", "alice", "for alice")
	require.NoError(t, repo.Create(ctx, toBob))
	require.NoError(t, repo.Create(ctx, toAlice))

	n, err := repo.MarkRead(ctx, []string{toBob.ID, toAlice.ID, "missing"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.MarkRead(ctx, []string{toBob.ID}, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := repo.GetByIDs(ctx, []string{toBob.ID, toAlice.ID})
	require.NoError(t, err)
	read := map[string]bool{}
	for _, m := range got {
		read[m.ID] = m.Read
	}
	assert.True(t, read[toBob.ID])
	assert.False(t, read[toAlice.ID])

	unread, err := repo.CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestMessageRepository_ListByParticipant(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newMsg("x", "alice", "bob", "1")))
	require.NoError(t, repo.Create(ctx, newMsg("y", "carol", "alice", "2")))
	require.NoError(t, repo.Create(ctx, newMsg("z", "carol", "bob", "3")))

	msgs, err := repo.ListByParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	none, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
