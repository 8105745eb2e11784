package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/internal/cache"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/internal/testutil"
	"github.com/Vasilion/UnyX-Social/pkg/apperr"
)

type fixture struct {
	db    *gorm.DB
	msgs  MessageService
	convs ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	msgRepo := repository.NewMessageRepository(db)
	itemRepo := repository.NewItemRepository(db)
	profiles := cache.NewProfileCache(repository.NewProfileRepository(db), nil, 0)
	return &fixture{
		db:    db,
		msgs:  NewMessageService(msgRepo, itemRepo, time.Second),
		convs: NewConversationService(msgRepo, itemRepo, profiles, time.Second),
	}
}

func (f *fixture) send(t *testing.T, item, from, to, body string) *model.Message {
	t.Helper()
	m, err := f.msgs.Send(context.Background(), identity.User(from), item, to, body)
	require.NoError(t, err)
	return m
}

func TestMessageService_SendValidation(t *testing.T) {
	f := newFixture(t)
	testutil.SeedItem(t, f.db, "x", "bob", "KX250")
	ctx := context.Background()
	alice := identity.User("alice")

	tests := []struct {
		name     string
		caller   identity.Identity
		item     string
		receiver string
		body     string
		check    func(error) bool
	}{
		{"anonymous", identity.Anonymous, "x", "bob", "hi", apperr.IsAuth},
		{"empty body", alice, "x", "bob", "   \n\t", apperr.IsValidation},
		{"missing receiver", alice, "x", "", "hi", apperr.IsValidation},
		{"missing item", alice, "", "bob", "hi", apperr.IsValidation},
		{"self", alice, "x", "alice", "hi", apperr.IsValidation},
		{"unknown item", alice, "nope", "bob", "hi", apperr.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.msgs.Send(ctx, tt.caller, tt.item, tt.receiver, tt.body)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}

	var cnt int64
	require.NoError(t, f.db.Model(&model.Message{}).Count(&cnt).Error)
	assert.Zero(t, cnt)
}

func TestMessageService_SendStoresExactlyOnce(t *testing.T) {
	f := newFixture(t)
	testutil.SeedItem(t, f.db, "x", "bob", "KX250")

	body := "  - fork seals\n  - chain\n"
	m := f.send(t, "x", "alice", "bob", body)
	assert.Equal(t, body, m.Body)
	assert.False(t, m.Read)
	assert.Equal(t, time.UTC, m.CreatedAt.Location())

	var stored []model.Message
	require.NoError(t, f.db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, m.ID, stored[0].ID)
	assert.Equal(t, body, stored[0].Body)
}

func TestMessageService_HistorySymmetricAndAuthorized(t *testing.T) {
	f := newFixture(t)
	testutil.SeedItem(t, f.db, "x", "bob", "KX250")
	ctx := context.Background()

	f.send(t, "x", "alice", "bob", "hi")
	f.send(t, "x", "bob", "alice", "hello")
	f.send(t, "x", "carol", "bob", "unrelated")

	fromAlice, err := f.msgs.History(ctx, identity.User("alice"), "x", "alice", "bob")
	require.NoError(t, err)
	fromBob, err := f.msgs.History(ctx, identity.User("bob"), "x", "bob", "alice")
	require.NoError(t, err)
	require.Len(t, fromAlice, 2)
	assert.Equal(t, fromAlice, fromBob)

	_, err = f.msgs.History(ctx, identity.User("carol"), "x", "alice", "bob")
	assert.True(t, apperr.IsAuth(err))

	_, err = f.msgs.History(ctx, identity.Anonymous, "x", "alice", "bob")
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Unauthenticated)
}

func TestMessageService_MarkReadIdempotentAndReceiverOnly(t *testing.T) {
	f := newFixture(t)
	testutil.SeedItem(t, f.db, "x", "bob", "KX250")
	ctx := context.Background()
	bob := identity.User("bob")

	toBob := f.send(t, "x", "alice", "bob", "for bob")
	toAlice := f.send(t, "x", "bob", "alice", "for alice")

	ids := []string{toBob.ID, toAlice.ID, "does-not-exist"}
	require.NoError(t, f.msgs.MarkRead(ctx, bob, ids, "bob"))
	require.NoError(t, f.msgs.MarkRead(ctx, bob, ids, "bob"))

	var got []model.Message
	require.NoError(t, f.db.Order("created_at").Find(&got).Error)
	require.Len(t, got, 2)
	assert.True(t, got[0].Read)
	assert.False(t, got[1].Read)

	err := f.msgs.MarkRead(ctx, identity.User("alice"), []string{toBob.ID}, "bob")
	assert.True(t, apperr.IsAuth(err))

	assert.NoError(t, f.msgs.MarkRead(ctx, bob, nil, "bob"))
}

func TestMessageService_StoreFailure(t *testing.T) {
	f := newFixture(t)
	testutil.SeedItem(t, f.db, "x", "bob", "KX250")
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.msgs.Send(context.Background(), identity.User("alice"), "x", "bob", "hi")
	assert.True(t, apperr.IsStore(err))

	_, err = f.convs.ListConversations(context.Background(), identity.User("alice"), "alice")
	assert.True(t, apperr.IsStore(err))
}

func TestMessageService_StoreTimeout(t *testing.T) {
	f := newFixture(t)
	testutil.SeedItem(t, f.db, "x", "bob", "KX250")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := f.msgs.History(ctx, identity.User("alice"), "x", "alice", "bob")
	var storeErr *apperr.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.Timeout())
}
