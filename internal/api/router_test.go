package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/internal/api/handler"
	"github.com/Vasilion/UnyX-Social/internal/cache"
	"github.com/Vasilion/UnyX-Social/internal/feed"
	"github.com/Vasilion/UnyX-Social/internal/live"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/internal/service"
	"github.com/Vasilion/UnyX-Social/internal/testutil"
	"github.com/Vasilion/UnyX-Social/pkg/storage"
)

const testSecret = "test-secret"

type apiEnv struct {
	db     *gorm.DB
	feed   *feed.InMemory
	router *gin.Engine
}

func newAPIEnv(t *testing.T, sendRate float64, sendBurst int) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		JWT:       config.JWTConfig{Secret: testSecret},
		Storage:   config.StorageConfig{Driver: "local", Bucket: "marketplace", LocalDir: dir, PublicBaseURL: "/storage"},
		Messaging: config.MessagingConfig{StoreTimeout: time.Second, SendRate: sendRate, SendBurst: sendBurst},
	}

	db := testutil.NewDB(t)
	msgRepo := repository.NewMessageRepository(db)
	itemRepo := repository.NewItemRepository(db)
	profiles := cache.NewProfileCache(repository.NewProfileRepository(db), nil, 0)
	msgs := service.NewMessageService(msgRepo, itemRepo, time.Second)
	convs := service.NewConversationService(msgRepo, itemRepo, profiles, time.Second)
	items := service.NewItemService(itemRepo, storage.NewLocalStore(dir, "/storage"), "marketplace", time.Second)
	f := feed.NewInMemory(64)
	bridge := live.NewBridge(f, msgs, convs, 64)
	t.Cleanup(bridge.Shutdown)

	return &apiEnv{db: db, feed: f, router: NewRouter(cfg, handler.New(msgs, convs, items, bridge))}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *apiEnv) do(t *testing.T, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func TestAPI_SendAndRead(t *testing.T) {
	e := newAPIEnv(t, 100, 100)
	testutil.SeedProfiles(t, e.db, "alice", "bob")
	testutil.SeedItem(t, e.db, "x", "bob", "KX250")

	code, _ := e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "", map[string]string{
		"item_id": "x", "receiver_id": "bob", "message": "hi",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "alice", map[string]string{
		"item_id": "x", "receiver_id": "bob", "message": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "alice", map[string]string{
		"item_id": "x", "receiver_id": "bob", "message": "Is this still available?",
	})
	require.Equal(t, http.StatusCreated, code)
	var sent model.Message
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "alice", sent.SenderID)

	code, env = e.do(t, http.MethodGet, "/api/v1/marketplace/messages/unread-count", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unread":1}`, string(env.Data))

	code, env = e.do(t, http.MethodGet, "/api/v1/marketplace/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var convs []model.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "alice", convs[0].CounterpartUsername)
	assert.Equal(t, "KX250", convs[0].ItemTitle)

	code, env = e.do(t, http.MethodGet, "/api/v1/marketplace/messages/thread?item_id=x&counterpart_id=alice", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var thread []model.Message
	require.NoError(t, json.Unmarshal(env.Data, &thread))
	require.Len(t, thread, 1)

	code, _ = e.do(t, http.MethodPost, "/api/v1/marketplace/messages/read", "bob", map[string][]string{
		"message_ids": {sent.ID, "bogus"},
	})
	require.Equal(t, http.StatusOK, code)

	_, env = e.do(t, http.MethodGet, "/api/v1/marketplace/messages/unread-count", "bob", nil)
	assert.JSONEq(t, `{"unread":0}`, string(env.Data))
}

func TestAPI_SendRateLimited(t *testing.T) {
	e := newAPIEnv(t, 0.001, 2)
	testutil.SeedItem(t, e.db, "x", "bob", "KX250")

	body := map[string]string{"item_id": "x", "receiver_id": "bob", "message": "hi"}
	for i := 0; i < 2; i++ {
		code, _ := e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "alice", body)
		require.Equal(t, http.StatusCreated, code)
	}
	code, _ := e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "alice", body)
	assert.Equal(t, http.StatusTooManyRequests, code)

	// other users have their own bucket
	code, _ = e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "carol", body)
	assert.Equal(t, http.StatusCreated, code)
}

func TestAPI_InvalidTokenIsAnonymous(t *testing.T) {
	e := newAPIEnv(t, 100, 100)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_ItemLifecycle(t *testing.T) {
	e := newAPIEnv(t, 100, 100)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"title": "KX250", "price": "4200", "condition": "used", "category": "bikes",
		"location": "Austin", "description": "Runs great", "features": `["new tires","fresh top end"]`,
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("images", "front.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/marketplace/items", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "bob"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var item model.MarketplaceItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	require.Len(t, item.Images, 1)
	assert.True(t, item.Images[0].IsPrimary)
	assert.Equal(t, []string{"new tires", "fresh top end"}, []string(item.Features))

	// image is served from the local store
	req = httptest.NewRequest(http.MethodGet, item.Images[0].URL, nil)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())

	code, _ := e.do(t, http.MethodGet, "/api/v1/marketplace/items?category=all", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodDelete, "/api/v1/marketplace/items/"+item.ID, "alice", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPut, "/api/v1/marketplace/items/"+item.ID+"/primary-image", "bob", map[string]string{"image_id": "nope"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodDelete, "/api/v1/marketplace/items/"+item.ID, "bob", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/marketplace/items/"+item.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_StreamDeliversUpdates(t *testing.T) {
	e := newAPIEnv(t, 100, 100)
	testutil.SeedItem(t, e.db, "x", "bob", "KX250")
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/v1/marketplace/messages/stream?item_id=x&counterpart_id=alice&access_token="+token(t, "bob"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event:") {
				events <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
		close(events)
	}()

	waitFor := func(kind string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case ev, ok := <-events:
				require.True(t, ok, "stream ended")
				if ev == kind {
					return
				}
			case <-deadline:
				t.Fatalf("no %s event", kind)
			}
		}
	}
	waitFor("thread")

	code, env := e.do(t, http.MethodPost, "/api/v1/marketplace/messages", "alice", map[string]string{
		"item_id": "x", "receiver_id": "bob", "message": "live",
	})
	require.Equal(t, http.StatusCreated, code)
	var sent model.Message
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	require.NoError(t, e.feed.Publish(context.Background(), &sent))

	waitFor("message")
}
