package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/internal/cache"
	"github.com/Vasilion/UnyX-Social/internal/feed"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/internal/service"
	"github.com/Vasilion/UnyX-Social/internal/testutil"
	"github.com/Vasilion/UnyX-Social/pkg/apperr"
)

type env struct {
	db     *gorm.DB
	feed   *feed.InMemory
	msgs   service.MessageService
	repo   repository.MessageRepository
	bridge *Bridge
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	repo := repository.NewMessageRepository(db)
	items := repository.NewItemRepository(db)
	profiles := cache.NewProfileCache(repository.NewProfileRepository(db), nil, 0)
	msgs := service.NewMessageService(repo, items, time.Second)
	convs := service.NewConversationService(repo, items, profiles, time.Second)
	f := feed.NewInMemory(64)
	for _, id := range []string{"x", "y"} {
		testutil.SeedItem(t, db, id, "bob", id)
	}
	return &env{db: db, feed: f, msgs: msgs, repo: repo, bridge: NewBridge(f, msgs, convs, 64)}
}

func (e *env) open(t *testing.T, user string) *Session {
	t.Helper()
	s, err := e.bridge.Open(context.Background(), identity.User(user))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	// initial list
	u := next(t, s)
	require.Equal(t, UpdateConversations, u.Kind)
	return s
}

// store persists a message without publishing it.
func (e *env) store(t *testing.T, item, from, to, body string) *model.Message {
	t.Helper()
	m, err := e.msgs.Send(context.Background(), identity.User(from), item, to, body)
	require.NoError(t, err)
	return m
}

func (e *env) publish(t *testing.T, m *model.Message) {
	t.Helper()
	require.NoError(t, e.feed.Publish(context.Background(), m))
}

func next(t *testing.T, s *Session) Update {
	t.Helper()
	select {
	case u, ok := <-s.Updates():
		require.True(t, ok, "updates closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func nextOf(t *testing.T, s *Session, kind UpdateKind) Update {
	t.Helper()
	for {
		if u := next(t, s); u.Kind == kind {
			return u
		}
	}
}

func quiet(t *testing.T, s *Session) {
	t.Helper()
	select {
	case u, ok := <-s.Updates():
		if ok {
			t.Fatalf("unexpected %s update", u.Kind)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func threadIDs(msgs []*model.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestBridge_OpenRequiresAuth(t *testing.T) {
	e := newEnv(t)
	_, err := e.bridge.Open(context.Background(), identity.Anonymous)
	assert.True(t, apperr.IsAuth(err))
	assert.Zero(t, e.bridge.SessionCount())
	assert.Zero(t, e.feed.SubscriberCount())
}

func TestSession_UnrelatedEventIgnored(t *testing.T) {
	e := newEnv(t)
	mine := e.store(t, "x", "alice", "eve", "hello eve")
	s := e.open(t, "eve")

	thread, err := s.Open(context.Background(), "x", "alice")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	nextOf(t, s, UpdateConversations)
	before := s.Conversations()

	other := e.store(t, "y", "carol", "dave", "not for eve")
	e.publish(t, other)
	quiet(t, s)

	assert.Equal(t, []string{mine.ID}, threadIDs(s.Thread()))
	assert.Equal(t, before, s.Conversations())
}

func TestSession_ArrivalAppendsAndMarksRead(t *testing.T) {
	e := newEnv(t)
	first := e.store(t, "x", "alice", "bob", "Is this still available?")
	s := e.open(t, "bob")

	thread, err := s.Open(context.Background(), "x", "alice")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.True(t, thread[0].Read)
	assert.Equal(t, UpdateThread, next(t, s).Kind)
	convs := nextOf(t, s, UpdateConversations).Conversations
	require.Len(t, convs, 1)
	assert.Zero(t, convs[0].UnreadCount)

	reply := e.store(t, "x", "alice", "bob", "Still there?")
	e.publish(t, reply)

	u := next(t, s)
	require.Equal(t, UpdateMessage, u.Kind)
	assert.Equal(t, reply.ID, u.Message.ID)
	assert.Equal(t, 1, u.Position)
	assert.True(t, u.Message.Read)

	convs = nextOf(t, s, UpdateConversations).Conversations
	require.Len(t, convs, 1)
	assert.Equal(t, "Still there?", convs[0].LastMessage)
	assert.Zero(t, convs[0].UnreadCount)

	var stored model.Message
	require.NoError(t, e.db.First(&stored, "id = ?", reply.ID).Error)
	assert.True(t, stored.Read)
	assert.Equal(t, []string{first.ID, reply.ID}, threadIDs(s.Thread()))
}

func TestSession_SenderSideDoesNotMarkRead(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "alice")
	_, err := s.Open(context.Background(), "x", "bob")
	require.NoError(t, err)

	sent := e.store(t, "x", "alice", "bob", "hi")
	e.publish(t, sent)
	u := nextOf(t, s, UpdateMessage)
	assert.False(t, u.Message.Read)

	var stored model.Message
	require.NoError(t, e.db.First(&stored, "id = ?", sent.ID).Error)
	assert.False(t, stored.Read)
}

func TestSession_OutOfOrderAndDuplicateDelivery(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "bob")
	_, err := s.Open(context.Background(), "x", "alice")
	require.NoError(t, err)

	m1 := e.store(t, "x", "alice", "bob", "first")
	m2 := e.store(t, "x", "bob", "alice", "second")
	require.True(t, m1.Before(m2))

	e.publish(t, m2)
	u := nextOf(t, s, UpdateMessage)
	assert.Equal(t, m2.ID, u.Message.ID)
	assert.Equal(t, 0, u.Position)

	e.publish(t, m1)
	u = nextOf(t, s, UpdateMessage)
	assert.Equal(t, m1.ID, u.Message.ID)
	assert.Equal(t, 0, u.Position)
	assert.Equal(t, UpdateConversations, next(t, s).Kind)

	// redelivery of m2 only refreshes the list
	e.publish(t, m2)
	assert.Equal(t, UpdateConversations, next(t, s).Kind)
	quiet(t, s)

	assert.Equal(t, []string{m1.ID, m2.ID}, threadIDs(s.Thread()))
}

func TestSession_EventOutsideOpenThreadRefreshesList(t *testing.T) {
	e := newEnv(t)
	s := e.open(t, "bob")
	_, err := s.Open(context.Background(), "x", "alice")
	require.NoError(t, err)
	nextOf(t, s, UpdateConversations)

	other := e.store(t, "y", "carol", "bob", "about y")
	e.publish(t, other)

	convs := next(t, s)
	require.Equal(t, UpdateConversations, convs.Kind)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, 1, convs.Conversations[0].UnreadCount)
	assert.Empty(t, s.Thread())

	s.CloseConversation()
	_, open := s.OpenConversation()
	assert.False(t, open)
}

func TestSession_CloseIsDeterministic(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, "bob")
	b := e.open(t, "alice")
	assert.Equal(t, 2, e.bridge.SessionCount())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	for range a.Updates() {
		// drain anything emitted before Close
	}
	assert.Equal(t, 1, e.bridge.SessionCount())
	assert.Equal(t, 1, e.feed.SubscriberCount())

	_, err := a.Open(context.Background(), "x", "alice")
	assert.ErrorIs(t, err, ErrSessionClosed)

	m := e.store(t, "x", "alice", "bob", "after close")
	e.publish(t, m)
	u := next(t, b)
	assert.Equal(t, UpdateConversations, u.Kind)

	_, ok := <-a.Updates()
	assert.False(t, ok)

	e.bridge.Shutdown()
	assert.Zero(t, e.bridge.SessionCount())
}
