package world

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseCell(t *testing.T) {
	c, err := parseCell("3,-2")
	require.NoError(t, err)
	assert.Equal(t, ai.Cell{Row: 3, Col: -2}, c)
	assert.Equal(t, "3,-2", formatCell(c))

	for _, bad := range []string{"", "3", "a,1", "1,b"} {
		_, err := parseCell(bad)
		assert.Error(t, err, bad)
	}
}

func TestEventObserver_PublishesAndMirrors(t *testing.T) {
	ctx := context.Background()
	c, ps := testutil.SetupTestCache(t)
	ch, cancel, err := ps.Subscribe(ctx, StepsChannel)
	require.NoError(t, err)
	defer cancel()

	obs := NewEventObserver(c, ps, zap.NewNop())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	obs.now = func() time.Time { return fixed }

	sched := newManualScheduler()
	w, err := NewWorldManager(Config{Scheduler: sched, Observer: obs, Nav: nav.DefaultOptions()})
	require.NoError(t, err)
	defer w.StopAll()

	m := glyphMap(t, "m", "...")
	require.NoError(t, w.AddMap(m))
	a, err := w.Spawn(SpawnRequest{Map: "m", Position: m.CellToWorld(ai.Cell{}), Inventory: terrain.Inventory{}})
	require.NoError(t, err)
	_, err = w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))
	require.NoError(t, err)
	sched.fire(loopName(a.ID()))
	sched.fire(loopName(a.ID()))

	var types []string
	var first Event
	for i := 0; i < 4; i++ {
		select {
		case msg := <-ch:
			var ev Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			assert.Equal(t, a.ID(), ev.Actor)
			assert.True(t, ev.At.Equal(fixed))
			if i == 0 {
				first = ev
			}
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", i)
		}
	}
	assert.Equal(t, []string{"replanned", "stepped", "stepped", "arrived"}, types)
	assert.Equal(t, []ai.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}, first.Route)

	state, err := c.HGetAll(ctx, ActorKey(a.ID()))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"state": "idle", "cell": "0,2"}, state)

	trail, err := ReadTrail(ctx, c, a.ID())
	require.NoError(t, err)
	assert.Equal(t, []ai.Cell{{Row: 0, Col: 2}, {Row: 0, Col: 1}}, trail)

	live, err := ReadLiveState(ctx, c, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "idle", live.State)
	require.NotNil(t, live.Cell)
	assert.Equal(t, ai.Cell{Row: 0, Col: 2}, *live.Cell)

	require.NoError(t, w.Despawn(a.ID()))
	for _, key := range []string{ActorKey(a.ID()), TrailKey(a.ID())} {
		ok, err := c.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestEventObserver_TrailIsBounded(t *testing.T) {
	ctx := context.Background()
	c, _ := testutil.SetupTestCache(t)
	obs := NewEventObserver(c, nil, nil)

	sched := newManualScheduler()
	w, err := NewWorldManager(Config{Scheduler: sched, Observer: obs})
	require.NoError(t, err)
	defer w.StopAll()

	row := make([]byte, trailLength+10)
	for i := range row {
		row[i] = '.'
	}
	m := glyphMap(t, "long", string(row))
	require.NoError(t, w.AddMap(m))
	a, err := w.Spawn(SpawnRequest{Map: "long", Position: m.CellToWorld(ai.Cell{})})
	require.NoError(t, err)
	_, _ = w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: len(row) - 1}))
	for i := 0; i < len(row)-1; i++ {
		require.True(t, sched.fire(loopName(a.ID())))
	}

	trail, err := ReadTrail(ctx, c, a.ID())
	require.NoError(t, err)
	require.Len(t, trail, trailLength)
	assert.Equal(t, ai.Cell{Row: 0, Col: len(row) - 1}, trail[0])
}

func TestReadTrail_Empty(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	trail, err := ReadTrail(context.Background(), c, "nobody")
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestReadLiveState_Empty(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	live, err := ReadLiveState(context.Background(), c, "nobody")
	require.NoError(t, err)
	assert.Equal(t, LiveState{}, live)
}

func TestReadLiveState_BadCell(t *testing.T) {
	ctx := context.Background()
	c, _ := testutil.SetupTestCache(t)
	require.NoError(t, c.HSet(ctx, ActorKey("a"), "cell", "nope"))
	_, err := ReadLiveState(ctx, c, "a")
	assert.Error(t, err)
}

// gatedObserver holds Stepped until released.
type gatedObserver struct {
	*EventObserver
	entered chan struct{}
	release chan struct{}
}

func (g *gatedObserver) Stepped(f *nav.Follower, to ai.Cell, delay time.Duration) {
	g.entered <- struct{}{}
	<-g.release
	g.EventObserver.Stepped(f, to, delay)
}

func TestDespawn_LateEventsDoNotRecreateState(t *testing.T) {
	ctx := context.Background()
	c, _ := testutil.SetupTestCache(t)
	obs := &gatedObserver{
		EventObserver: NewEventObserver(c, nil, nil),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	sched := newManualScheduler()
	w, err := NewWorldManager(Config{Scheduler: sched, Observer: obs})
	require.NoError(t, err)
	defer w.StopAll()

	m := glyphMap(t, "m", "...")
	require.NoError(t, w.AddMap(m))
	a, err := w.Spawn(SpawnRequest{Map: "m", Position: m.CellToWorld(ai.Cell{})})
	require.NoError(t, err)
	e, err := w.entry(a.ID())
	require.NoError(t, err)
	f := e.follower
	_, err = w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))
	require.NoError(t, err)

	go sched.fire(loopName(a.ID()))
	select {
	case <-obs.entered:
	case <-time.After(time.Second):
		t.Fatal("step was never reported")
	}

	despawned := make(chan error, 1)
	go func() { despawned <- w.Despawn(a.ID()) }()
	select {
	case <-despawned:
		t.Fatal("Despawn returned while a step was still being reported")
	case <-time.After(50 * time.Millisecond):
	}
	close(obs.release)
	select {
	case err := <-despawned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Despawn did not return")
	}

	// notifications after Despawn are dropped before reaching the observer
	h := hooks{w: w}
	h.Stepped(f, ai.Cell{Row: 0, Col: 2}, time.Second)
	h.Arrived(f, ai.Cell{Row: 0, Col: 2})
	h.Unreachable(f, ai.Cell{Row: 0, Col: 2}, ai.Cell{Row: 0, Col: 0})

	for _, key := range []string{ActorKey(a.ID()), TrailKey(a.ID())} {
		ok, err := c.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}
