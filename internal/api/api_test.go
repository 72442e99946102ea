package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/api"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/memstore"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/profile"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/queue"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/quiz"
)

func TestAPI_Health(t *testing.T) {
	h := makeHarness(t)

	code, body := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"Online"}`, body)
}

func TestAPI_GetProfile(t *testing.T) {
	h := makeHarness(t)

	for i := 0; i < 2; i++ {
		code, body := h.do(t, http.MethodGet, "/get-profile?user_id=u1", nil)
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"level":1,"xp":0,"lives":5}`, body)
	}

	code, body := h.do(t, http.MethodGet, "/get-profile", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.JSONEq(t, `{"error":"user_id is required"}`, body)
}

func TestAPI_AddXP(t *testing.T) {
	tests := map[string]struct {
		body     any
		wantCode int
		wantBody string
	}{
		"should add xp": {
			body:     map[string]any{"user_id": "u1", "xp_amount": 120},
			wantCode: http.StatusOK,
			wantBody: `{"success":true,"new_level":2,"current_xp":120,"leveled_up":true}`,
		},
		"should reject zero xp": {
			body:     map[string]any{"user_id": "u1", "xp_amount": 0},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"xp_amount must be a positive integer"}`,
		},
		"should reject negative xp": {
			body:     map[string]any{"user_id": "u1", "xp_amount": -5},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"xp_amount must be a positive integer"}`,
		},
		"should reject missing user": {
			body:     map[string]any{"xp_amount": 5},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"user_id is required"}`,
		},
		"should reject malformed body": {
			body:     "not json",
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"invalid request body"}`,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := makeHarness(t)
			code, body := h.do(t, http.MethodPost, "/add-xp", tt.body)
			require.Equal(t, tt.wantCode, code)
			require.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestAPI_CompleteSessionAndQuest(t *testing.T) {
	h := makeHarness(t)

	code, body := h.do(t, http.MethodPost, "/complete-session", map[string]any{"user_id": "u1", "minutes": 3})
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success":true,"new_level":1,"current_xp":30,"leveled_up":false,"xp_earned":30}`, body)

	code, body = h.do(t, http.MethodPost, "/complete-quest", map[string]any{"user_id": "u1", "xp_amount": 70})
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success":true,"new_level":2,"current_xp":100,"leveled_up":true}`, body)

	code, _ = h.do(t, http.MethodPost, "/complete-session", map[string]any{"user_id": "u1", "minutes": 0})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_Queue(t *testing.T) {
	h := makeHarness(t)

	code, body := h.do(t, http.MethodGet, "/queue-status?user_id=u1", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"in_queue":false}`, body)

	code, body = h.do(t, http.MethodPost, "/join-queue", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success":true}`, body)

	code, body = h.do(t, http.MethodPost, "/join-queue", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success":true,"message":"already queued"}`, body)
	require.Equal(t, 1, h.store.QueueLen())

	code, body = h.do(t, http.MethodGet, "/queue-status?user_id=u1", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"in_queue":true,"position":1,"total":1}`, body)

	code, _ = h.do(t, http.MethodPost, "/join-queue", map[string]any{})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_GetActivity(t *testing.T) {
	h := makeHarness(t)
	h.store.AddQuestions(
		domain.Question{ID: "q1", Difficulty: "easy", Content: domain.QuestionContent{Text: "1+1", Options: []string{"1", "2"}, Answer: "2"}},
		domain.Question{ID: "q2", Difficulty: "easy", Content: domain.QuestionContent{Text: "2+2", Options: []string{"4", "5"}, Answer: "4"}},
		domain.Question{ID: "q3", Difficulty: "hard", Content: domain.QuestionContent{Text: "9*9", Options: []string{"81"}, Answer: "81"}},
	)
	require.NoError(t, h.store.RecordAnswered(context.Background(), "u1", []string{"q2"}))

	code, body := h.do(t, http.MethodGet, "/get-activity?user_id=u1", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success":true,"questions":[{"id":"q1","t":"1+1","o":["1","2"],"c":1}]}`, body)

	code, body = h.do(t, http.MethodGet, "/get-activity?user_id=u1&difficulty=hard", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success":true,"questions":[{"id":"q3","t":"9*9","o":["81"],"c":0}]}`, body)

	code, body = h.do(t, http.MethodGet, "/get-activity?user_id=u1&difficulty=medium", nil)
	require.Equal(t, http.StatusOK, code, "no new questions is not an HTTP error")
	require.JSONEq(t, `{"success":false,"error":"no new questions"}`, body)

	code, _ = h.do(t, http.MethodGet, "/get-activity", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_CompleteLevel(t *testing.T) {
	t.Run("missing profile is a client error by default", func(t *testing.T) {
		h := makeHarness(t)

		code, body := h.do(t, http.MethodPost, "/complete-level", map[string]any{"user_id": "u1", "xp_reward": 100})
		require.Equal(t, http.StatusBadRequest, code)
		require.JSONEq(t, `{"error":"profile not found"}`, body)
	})

	t.Run("missing profile is provisioned when enabled", func(t *testing.T) {
		h := makeHarness(t, withAutoProvision())

		code, body := h.do(t, http.MethodPost, "/complete-level", map[string]any{"user_id": "u1", "xp_reward": 100})
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"success":true,"new_level":2,"current_xp":100}`, body)
	})

	t.Run("completion adds one level and the default reward and records history", func(t *testing.T) {
		h := makeHarness(t)
		h.store.AddQuestions(domain.Question{ID: "q1", Difficulty: "easy"}, domain.Question{ID: "q2", Difficulty: "easy"})

		code, _ := h.do(t, http.MethodGet, "/get-profile?user_id=u1", nil)
		require.Equal(t, http.StatusOK, code)

		code, body := h.do(t, http.MethodPost, "/complete-level", map[string]any{"user_id": "u1", "questions_ids": []string{"q1"}})
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"success":true,"new_level":2,"current_xp":50}`, body)

		code, body = h.do(t, http.MethodGet, "/get-activity?user_id=u1", nil)
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"success":true,"questions":[{"id":"q2","t":"","o":null,"c":-1}]}`, body)
	})
}

func TestAPI_LoseLife(t *testing.T) {
	h := makeHarness(t)

	want := []int{4, 3, 2, 1, 0, 0, 0}
	for _, lives := range want {
		code, body := h.do(t, http.MethodPost, "/lose-life", map[string]any{"user_id": "u1"})
		require.Equal(t, http.StatusOK, code)

		var resp api.LoseLifeResponse
		require.NoError(t, json.Unmarshal([]byte(body), &resp))
		require.Equal(t, api.LoseLifeResponse{Success: true, Lives: lives}, resp)
	}
}

func TestAPI_Notifications(t *testing.T) {
	rc := &fakeRedis{}
	h := makeHarness(t, withRedis(rc), withAutoProvision())

	code, _ := h.do(t, http.MethodPost, "/add-xp", map[string]any{"user_id": "u1", "xp_amount": 150})
	require.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodPost, "/lose-life", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodPost, "/join-queue", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, code)
	h.eb.Stop()

	msgs := rc.messages(api.UserChannel("test", "u1"))
	require.Len(t, msgs, 3)

	events := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var n struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(m, &n))
		events = append(events, n.Event)

		if n.Event == domain.EventNameLeveledUp {
			assert.JSONEq(t, `{"user_id":"u1","level":2,"xp":150}`, string(n.Data))
		}
	}
	require.ElementsMatch(t, []string{domain.EventNameLeveledUp, domain.EventNameLifeLost, domain.EventNameQueueJoined}, events)
}

type harness struct {
	engine *gin.Engine
	store  *memstore.Store
	eb     *event.Bus
}

type options struct {
	redis         api.Redis
	autoProvision bool
}

type option func(*options)

func withRedis(r api.Redis) option {
	return func(o *options) { o.redis = r }
}

func withAutoProvision() option {
	return func(o *options) { o.autoProvision = true }
}

func makeHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &harness{
		engine: gin.New(),
		store:  memstore.New(),
		eb:     event.NewBus(),
	}

	zs := quiz.NewService(quiz.Config{Store: h.store})
	ps := profile.NewService(profile.Config{
		Store:         h.store,
		Ledger:        h.store,
		History:       zs,
		EventBus:      h.eb,
		AutoProvision: o.autoProvision,
	})
	qs := queue.NewService(queue.Config{Store: h.store, Profiles: ps, EventBus: h.eb})

	c := api.Config{
		Router:       h.engine,
		EventBus:     h.eb,
		Profile:      ps,
		Queue:        qs,
		Quiz:         zs,
		PubsubPrefix: "test",
	}
	if o.redis != nil {
		c.Redis = o.redis
	}
	api.New(c)

	return h
}

func (h *harness) do(t *testing.T, method, target string, body any) (int, string) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	return w.Code, w.Body.String()
}

type fakeRedis struct {
	mu   sync.Mutex
	sent map[string][][]byte
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sent == nil {
		f.sent = make(map[string][][]byte)
	}
	f.sent[channel] = append(f.sent[channel], message.([]byte))

	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) messages(channel string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sent[channel]
}
