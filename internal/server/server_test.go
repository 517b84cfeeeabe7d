package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/QuinnsCode/qbear3-sub004/internal/matchmaking"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"github.com/QuinnsCode/qbear3-sub004/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	server   *Server
	sessions *session.Manager
	decks    *cards.DeckStore
	http     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := &config.Config{
		Server: config.ServerConfig{
			Address:         "127.0.0.1:0",
			ShutdownTimeout: time.Second,
			MaxMessageBytes: 1 << 20,
		},
		Session: config.SessionConfig{
			IdleTimeout:      time.Second,
			MailboxSize:      32,
			HeartbeatTimeout: time.Minute,
			ReapInterval:     time.Second,
			CursorInterval:   16 * time.Millisecond,
			SendBuffer:       64,
		},
		Matchmaking: config.MatchmakingConfig{
			Regions:         []string{"us-east"},
			FreshnessWindow: time.Hour,
			CloseDelay:      50 * time.Millisecond,
			OrphanTimeout:   time.Minute,
			CreateTimeout:   5 * time.Second,
		},
	}

	store := repository.NewMemoryStore()
	catalog := cards.NewMemoryCatalog(cards.BuiltinDefinitions())
	templates := cards.NewTemplates(nil, catalog)
	decks := cards.NewDeckStore(store, catalog)
	sessions := session.NewManager(cfg.Session, session.Deps{
		Engine:    game.NewEngine(logger),
		Store:     store,
		Templates: templates,
		Decks:     decks,
	}, logger)
	creator := NewMatchCreator(sessions)
	queues, err := matchmaking.NewManager(context.Background(), cfg.Matchmaking, store, creator, creator, logger)
	require.NoError(t, err)

	srv := New(cfg, Deps{
		Sessions:    sessions,
		Matchmaking: queues,
		Decks:       decks,
		Templates:   templates,
	}, logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		sessions.Shutdown()
		ts.Close()
	})
	return &testEnv{server: srv, sessions: sessions, decks: decks, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type         string      `json:"type"`
	State        *game.State `json:"state"`
	Error        string      `json:"error"`
	MatchID      string      `json:"matchId"`
	OpponentName string      `json:"opponentName"`
}

// readUntil reads frames until one of type typ satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(wireMessage) bool) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ && (match == nil || match(msg)) {
			return msg
		}
	}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/sessions", `{"id":"table-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var summary session.Summary
	decode(t, resp, &summary)
	assert.Equal(t, "table-1", summary.ID)

	resp = env.do(t, http.MethodPost, "/v1/sessions", `{"id":"table-1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/sessions", `{"id":"bad id"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/sessions", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/sessions/table-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state game.State
	decode(t, resp, &state)
	assert.Equal(t, "table-1", state.ID)
	assert.Empty(t, state.Players)

	resp = env.do(t, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []session.Summary
	decode(t, resp, &list)
	require.Len(t, list, 1)

	resp = env.do(t, http.MethodGet, "/v1/sessions/table-1/checksum", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum checksumResponse
	decode(t, resp, &sum)
	assert.Equal(t, game.Checksum(game.NewState("table-1")), sum.Checksum)

	resp = env.do(t, http.MethodDelete, "/v1/sessions/table-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/sessions/table-1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDecksAndTemplates(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/templates", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var templates []templateResponse
	decode(t, resp, &templates)
	require.Len(t, templates, 2)
	assert.Equal(t, 0, templates[0].Index)

	resp = env.do(t, http.MethodPut, "/v1/decks/d1", `{"name":"Forests","text":"60 Forest"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deck cards.StoredDeck
	decode(t, resp, &deck)
	assert.Equal(t, "d1", deck.ID)
	assert.False(t, deck.ExportedAt.IsZero())

	resp = env.do(t, http.MethodPut, "/v1/decks/d2", `{"name":"Empty"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/decks/d1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/decks/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueueStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/matchmaking/us-east/status?userId=alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status matchmaking.Status
	decode(t, resp, &status)
	assert.Equal(t, matchmaking.Status{}, status)

	resp = env.do(t, http.MethodGet, "/v1/matchmaking/mars/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionSocketPlaysSandboxDeck(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "/ws/sessions/sandbox?playerId=alice&playerName=Alice")

	initial := readUntil(t, alice, "state_update", nil)
	require.NotNil(t, initial.State)
	assert.Equal(t, "sandbox", initial.State.ID)

	readUntil(t, alice, "state_update", func(m wireMessage) bool {
		return m.State.Player("alice") != nil
	})

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type": "import_sandbox_deck",
		"data": map[string]int{"templateIndex": 0},
	}))
	imported := readUntil(t, alice, "state_update", func(m wireMessage) bool {
		p := m.State.Player("alice")
		return p != nil && len(p.Zones.Command) == 1
	})
	assert.Len(t, imported.State.Player("alice").Zones.Library, 99)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type": "draw_cards",
		"data": map[string]int{"count": 7},
	}))
	drawn := readUntil(t, alice, "state_update", func(m wireMessage) bool {
		return len(m.State.Player("alice").Zones.Hand) == 7
	})
	zones := drawn.State.Player("alice").Zones
	assert.Len(t, zones.Library, 92)
	assert.Len(t, zones.Command, 1)

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "ping", "playerId": "alice"}))
	readUntil(t, alice, "pong", nil)
}

func TestSessionSocketSpectatorCannotAct(t *testing.T) {
	env := newTestEnv(t)
	watcher := env.dial(t, "/ws/sessions/open-table")
	readUntil(t, watcher, "state_update", nil)

	require.NoError(t, watcher.WriteJSON(map[string]any{"type": "untap_all"}))
	msg := readUntil(t, watcher, "error", nil)
	assert.NotEmpty(t, msg.Error)
}

func TestSessionSocketRejectsBadID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/ws/sessions/"+strings.Repeat("x", 200), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMatchmakingSocketPairsPlayers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	beatdown := cards.BuiltinTemplates()[1].Text
	require.NoError(t, env.decks.Put(ctx, cards.StoredDeck{ID: "deck-a", Name: "Beatdown", Text: beatdown}))
	require.NoError(t, env.decks.Put(ctx, cards.StoredDeck{ID: "deck-b", Name: "Beatdown", Text: beatdown}))

	join := func(conn *websocket.Conn, user, deck string) {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type":           "join_queue",
			"userId":         user,
			"userName":       strings.ToUpper(user),
			"deckId":         deck,
			"deckName":       "Beatdown",
			"deckExportedAt": time.Now().UTC(),
		}))
	}

	a := env.dial(t, "/ws/matchmaking/us-east")
	join(a, "alice", "deck-a")
	readUntil(t, a, "queue_status", nil)

	b := env.dial(t, "/ws/matchmaking/us-east")
	join(b, "bob", "deck-b")

	foundA := readUntil(t, a, "match_found", nil)
	foundB := readUntil(t, b, "match_found", nil)
	assert.Equal(t, foundA.MatchID, foundB.MatchID)
	assert.Equal(t, "BOB", foundA.OpponentName)
	assert.Equal(t, "ALICE", foundB.OpponentName)

	sess, err := env.sessions.Get(ctx, foundA.MatchID)
	require.NoError(t, err)
	state := sess.Coordinator.Snapshot()
	require.Len(t, state.Players, 2)
	assert.Len(t, state.Player("alice").Zones.Library, 60)
	assert.Len(t, state.Player("bob").Zones.Library, 60)
}

func TestMatchmakingSocketRejectsStaleDeck(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "/ws/matchmaking/us-east")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":           "join_queue",
		"userId":         "alice",
		"deckId":         "deck-a",
		"deckExportedAt": time.Now().Add(-2 * time.Hour).UTC(),
	}))
	msg := readUntil(t, conn, "error", nil)
	assert.Contains(t, msg.Error, "too old")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bogus"}))
	msg = readUntil(t, conn, "error", nil)
	assert.Contains(t, msg.Error, "unknown message type")
}

func TestMatchmakingSocketRejectsUnknownDeck(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "/ws/matchmaking/us-east")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":           "join_queue",
		"userId":         "alice",
		"deckId":         "never-saved",
		"deckExportedAt": time.Now().UTC(),
	}))
	msg := readUntil(t, conn, "error", nil)
	assert.Contains(t, msg.Error, "deck not found")

	q, err := env.server.deps.Matchmaking.Queue("us-east")
	require.NoError(t, err)
	assert.Empty(t, q.Entries())
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.server.cfg.AllowedOrigins = []string{"https://table.example"}

	req := httptest.NewRequest(http.MethodGet, "/ws/sessions/x", nil)
	req.Header.Set("Origin", "https://table.example")
	assert.True(t, env.server.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, env.server.checkOrigin(req))
}
