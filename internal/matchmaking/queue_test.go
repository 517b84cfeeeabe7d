package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testConn struct {
	id string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *testConn) Close(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *testConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messages returns every sent message of type typ decoded into a map.
func (c *testConn) messages(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0)
	for _, raw := range c.sent {
		var msg map[string]any
		if json.Unmarshal(raw, &msg) == nil && msg["type"] == typ {
			out = append(out, msg)
		}
	}
	return out
}

type fakeCreator struct {
	mu    sync.Mutex
	fail  error
	calls [][]Entry
	ids   []string

	// during runs before the result is returned.
	during func(players []Entry)
	delay  time.Duration
	// failFor fails any pair containing one of these deck ids.
	failFor map[string]bool
}

func (f *fakeCreator) CreateMatch(_ context.Context, matchID string, players []Entry) error {
	if f.during != nil {
		f.during(players)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]Entry(nil), players...))
	f.ids = append(f.ids, matchID)
	for _, p := range players {
		if f.failFor[p.DeckID] {
			return errors.New("deck does not resolve")
		}
	}
	return f.fail
}

type fakeDecks map[string]bool

var errNoSuchDeck = errors.New("no such deck")

func (d fakeDecks) CheckDeck(_ context.Context, deckID string) error {
	if !d[deckID] {
		return errNoSuchDeck
	}
	return nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.MatchmakingConfig {
	return config.MatchmakingConfig{
		Regions:         []string{"us-east"},
		FreshnessWindow: time.Hour,
		CloseDelay:      10 * time.Millisecond,
		OrphanTimeout:   time.Minute,
		CreateTimeout:   time.Second,
	}
}

func newTestQueue(t *testing.T, store repository.Store, creator SessionCreator) (*Queue, *time.Time) {
	t.Helper()
	clock := testNow
	q, err := NewQueue(context.Background(), "us-east", testConfig(), store, creator, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	q.now = func() time.Time { return clock }
	return q, &clock
}

func join(t *testing.T, q *Queue, conn Conn, playerID string, at time.Time) error {
	t.Helper()
	return q.Join(context.Background(), conn, JoinRequest{
		UserID:         playerID,
		UserName:       playerID + "-name",
		DeckID:         "deck-" + playerID,
		DeckName:       "Deck",
		DeckExportedAt: at,
	})
}

func TestJoinRejectsStaleDeck(t *testing.T) {
	q, clock := newTestQueue(t, repository.NewMemoryStore(), &fakeCreator{})

	err := join(t, q, &testConn{id: "c1"}, "alice", clock.Add(-2*time.Hour))
	assert.ErrorIs(t, err, ErrStaleDeck)
	assert.Equal(t, 0, q.Status("alice").QueueSize)

	err = join(t, q, &testConn{id: "c1"}, "alice", time.Time{})
	assert.ErrorIs(t, err, ErrStaleDeck)

	err = q.Join(context.Background(), &testConn{id: "c1"}, JoinRequest{UserID: "alice", DeckExportedAt: *clock})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, q.Entries())
}

func TestPairingIsFIFO(t *testing.T) {
	creator := &fakeCreator{fail: errors.New("hold")}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)

	a, b, c := &testConn{id: "a"}, &testConn{id: "b"}, &testConn{id: "c"}
	require.NoError(t, join(t, q, a, "alice", *clock))
	*clock = clock.Add(time.Second)
	// Creation fails for the first pair so we can add a third entry.
	require.NoError(t, join(t, q, b, "bob", *clock))
	*clock = clock.Add(time.Second)

	creator.mu.Lock()
	creator.fail = nil
	creator.mu.Unlock()
	require.NoError(t, join(t, q, c, "carol", *clock))

	creator.mu.Lock()
	defer creator.mu.Unlock()
	require.Len(t, creator.calls, 2)
	last := creator.calls[1]
	assert.Equal(t, "alice", last[0].PlayerID)
	assert.Equal(t, "bob", last[1].PlayerID)

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "carol", entries[0].PlayerID)
}

func TestMatchFoundNotifiesAndCloses(t *testing.T) {
	creator := &fakeCreator{}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)
	a, b := &testConn{id: "a"}, &testConn{id: "b"}

	require.NoError(t, join(t, q, a, "alice", *clock))
	require.NoError(t, join(t, q, b, "bob", *clock))

	require.Len(t, creator.ids, 1)
	found := a.messages(TypeMatchFound)
	require.Len(t, found, 1)
	assert.Equal(t, creator.ids[0], found[0]["matchId"])
	assert.Equal(t, "bob-name", found[0]["opponentName"])
	foundB := b.messages(TypeMatchFound)
	require.Len(t, foundB, 1)
	assert.Equal(t, "alice-name", foundB[0]["opponentName"])

	assert.Empty(t, q.Entries())
	require.Eventually(t, func() bool { return a.isClosed() && b.isClosed() }, time.Second, 5*time.Millisecond)
}

func TestFailedCreationRestoresFront(t *testing.T) {
	creator := &fakeCreator{fail: errors.New("storage down")}
	store := repository.NewMemoryStore()
	q, clock := newTestQueue(t, store, creator)
	a, b := &testConn{id: "a"}, &testConn{id: "b"}

	require.NoError(t, join(t, q, a, "alice", *clock))
	require.NoError(t, join(t, q, b, "bob", *clock))

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].PlayerID)
	assert.Equal(t, "bob", entries[1].PlayerID)
	assert.Len(t, a.messages(TypeError), 1)
	assert.Len(t, b.messages(TypeError), 1)
	assert.Empty(t, a.messages(TypeMatchFound))
	assert.False(t, a.isClosed())

	data, err := store.Get(context.Background(), repository.QueueKey("us-east"))
	require.NoError(t, err)
	var persisted []Entry
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Len(t, persisted, 2)
}

func TestReconnectUpdatesConnection(t *testing.T) {
	creator := &fakeCreator{}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)
	first, second := &testConn{id: "first"}, &testConn{id: "second"}

	require.NoError(t, join(t, q, first, "alice", *clock))
	require.NoError(t, join(t, q, second, "alice", *clock))

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].conn.ID())
	assert.Empty(t, creator.calls)

	// The old connection dropping no longer owns the entry.
	q.Disconnect(context.Background(), "first")
	assert.Len(t, q.Entries(), 1)
}

func TestLeaveAndDisconnect(t *testing.T) {
	creator := &fakeCreator{fail: errors.New("hold")}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)
	a, b := &testConn{id: "a"}, &testConn{id: "b"}
	require.NoError(t, join(t, q, a, "alice", *clock))
	require.NoError(t, join(t, q, b, "bob", *clock))

	q.Leave(context.Background(), "nobody")
	assert.Len(t, q.Entries(), 2)

	q.Leave(context.Background(), "alice")
	assert.Equal(t, Status{Position: 1, QueueSize: 1}, q.Status("bob"))

	q.Disconnect(context.Background(), "b")
	assert.Empty(t, q.Entries())
	assert.Equal(t, Status{Position: 0, QueueSize: 0}, q.Status("bob"))
}

func TestQueueStatusPush(t *testing.T) {
	creator := &fakeCreator{fail: errors.New("hold")}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)
	a, b := &testConn{id: "a"}, &testConn{id: "b"}
	require.NoError(t, join(t, q, a, "alice", *clock))
	require.NoError(t, join(t, q, b, "bob", *clock))

	statuses := b.messages(TypeQueueStatus)
	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1]
	assert.Equal(t, float64(2), last["position"])
	assert.Equal(t, float64(2), last["queueSize"])
}

func TestRestoredEntriesAreOrphanedThenPruned(t *testing.T) {
	store := repository.NewMemoryStore()
	creator := &fakeCreator{fail: errors.New("hold")}
	q, clock := newTestQueue(t, store, creator)
	require.NoError(t, join(t, q, &testConn{id: "a"}, "alice", *clock))
	require.NoError(t, join(t, q, &testConn{id: "b"}, "bob", *clock))

	restored, err := NewQueue(context.Background(), "us-east", testConfig(), store, creator, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	entries := restored.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.Connected())
	}

	// Alice comes back; bob does not.
	restored.now = func() time.Time { return time.Now() }
	require.NoError(t, restored.Join(context.Background(), &testConn{id: "a2"}, JoinRequest{
		UserID: "alice", DeckID: "deck-alice", DeckExportedAt: time.Now(),
	}))
	assert.Zero(t, restored.PruneOrphans(context.Background()))

	restored.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, restored.PruneOrphans(context.Background()))
	entries = restored.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].PlayerID)
}

func TestOrphansAreNotPaired(t *testing.T) {
	store := repository.NewMemoryStore()
	hold := &fakeCreator{fail: errors.New("hold")}
	q, clock := newTestQueue(t, store, hold)
	require.NoError(t, join(t, q, &testConn{id: "a"}, "alice", *clock))
	require.NoError(t, join(t, q, &testConn{id: "b"}, "bob", *clock))

	creator := &fakeCreator{}
	restored, err := NewQueue(context.Background(), "us-east", testConfig(), store, creator, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	restored.now = func() time.Time { return *clock }

	require.NoError(t, join(t, restored, &testConn{id: "c"}, "carol", *clock))
	assert.Empty(t, creator.calls)

	require.NoError(t, join(t, restored, &testConn{id: "b2"}, "bob", *clock))
	assert.Empty(t, creator.calls, "reconnecting does not trigger pairing")

	require.NoError(t, join(t, restored, &testConn{id: "d"}, "dave", *clock))
	require.Len(t, creator.calls, 1)
	assert.Equal(t, "bob", creator.calls[0][0].PlayerID)
	assert.Equal(t, "carol", creator.calls[0][1].PlayerID)
}

func TestManagerRegions(t *testing.T) {
	cfg := testConfig()
	cfg.Regions = []string{"us-east", "eu-west"}
	m, err := NewManager(context.Background(), cfg, repository.NewMemoryStore(), &fakeCreator{}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"eu-west", "us-east"}, m.Regions())
	q, err := m.Queue("eu-west")
	require.NoError(t, err)
	assert.Equal(t, "eu-west", q.Region())

	_, err = m.Queue("mars")
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestDisconnectDuringCreationIsNotRestored(t *testing.T) {
	creator := &fakeCreator{fail: errors.New("storage down")}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)
	creator.during = func([]Entry) { q.Disconnect(context.Background(), "b") }
	a, b := &testConn{id: "a"}, &testConn{id: "b"}

	require.NoError(t, join(t, q, a, "alice", *clock))
	require.NoError(t, join(t, q, b, "bob", *clock))

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].PlayerID)
	assert.Equal(t, Status{Position: 0, QueueSize: 1}, q.Status("bob"))
	assert.Empty(t, b.messages(TypeError), "the dropped connection is not notified")
	assert.Len(t, a.messages(TypeError), 1)
}

func TestRejoinDuringCreationIsNotDuplicated(t *testing.T) {
	creator := &fakeCreator{fail: errors.New("storage down")}
	q, clock := newTestQueue(t, repository.NewMemoryStore(), creator)
	b2 := &testConn{id: "b2"}
	creator.during = func([]Entry) {
		// Bob queues again from a new tab while the match is being built.
		require.NoError(t, join(t, q, b2, "bob", *clock))
	}

	require.NoError(t, join(t, q, &testConn{id: "a"}, "alice", *clock))
	require.NoError(t, join(t, q, &testConn{id: "b"}, "bob", *clock))

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].PlayerID)
	assert.Equal(t, "bob", entries[1].PlayerID)
	assert.Equal(t, "b2", entries[1].conn.ID())
}

func TestJoinRejectsUnknownDeck(t *testing.T) {
	creator := &fakeCreator{failFor: map[string]bool{"deck-alice": true}}
	q, err := NewQueue(context.Background(), "us-east", testConfig(), repository.NewMemoryStore(), creator,
		fakeDecks{"deck-bob": true, "deck-carol": true, "deck-dave": true, "deck-erin": true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	now := time.Now()

	err = join(t, q, &testConn{id: "a"}, "alice", now)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, errNoSuchDeck)
	assert.Empty(t, q.Entries())

	for _, player := range []string{"bob", "carol", "dave", "erin"} {
		require.NoError(t, join(t, q, &testConn{id: player}, player, now))
	}
	assert.Len(t, creator.calls, 2)
	assert.Empty(t, q.Entries())
}

func TestConcurrentJoinsClaimEachPlayerOnce(t *testing.T) {
	creator := &fakeCreator{delay: 5 * time.Millisecond}
	q, err := NewQueue(context.Background(), "us-east", testConfig(), repository.NewMemoryStore(), creator, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	const players = 24
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%02d", i)
			assert.NoError(t, join(t, q, &testConn{id: "conn-" + id}, id, now))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]int, players)
	creator.mu.Lock()
	for _, pair := range creator.calls {
		require.Len(t, pair, 2)
		assert.NotEqual(t, pair[0].PlayerID, pair[1].PlayerID)
		for _, e := range pair {
			seen[e.PlayerID]++
		}
	}
	creator.mu.Unlock()
	for _, e := range q.Entries() {
		seen[e.PlayerID]++
	}

	assert.Len(t, seen, players)
	for id, n := range seen {
		assert.Equal(t, 1, n, "player %s claimed or queued more than once", id)
	}
}
