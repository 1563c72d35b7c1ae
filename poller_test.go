package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeStatus writes a successful status envelope for the given block.
func writeStatus(w http.ResponseWriter, blockID string, height int64) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"success":true,"status":{"block_id":%q,"height":%d,"hash":"0xabc","created_at":"2026-01-02T15:04:05Z","active":true,"category":"static"}}`,
		blockID, height)
}

// sequenceServer serves the given block IDs in request order, repeating
// the last one for any further requests. The returned channel is closed
// once every ID has been served at least once.
func sequenceServer(t *testing.T, ids []string) (*httptest.Server, <-chan struct{}) {
	t.Helper()

	var served atomic.Int32
	allServed := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		idx := int(n) - 1
		if idx >= len(ids) {
			idx = len(ids) - 1
		}
		writeStatus(w, ids[idx], int64(idx+1))
		if int(n) == len(ids) {
			close(allServed)
		}
	}))
	t.Cleanup(ts.Close)

	return ts, allServed
}

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// recorder collects observed snapshots thread-safely.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.snaps))
	for i, s := range r.snaps {
		ids[i] = s.BlockID
	}
	return ids
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// TestPoller_NotifiesOnlyOnIdentifierChange runs the canonical scenario:
// first poll returns block_001 (one notification), second poll returns
// block_001 again (no notification), third poll returns block_002 (one
// notification).
func TestPoller_NotifiesOnlyOnIdentifierChange(t *testing.T) {
	ts, allServed := sequenceServer(t, []string{"block_001", "block_001", "block_002"})

	rec := &recorder{}
	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithFallback(false),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	unsubscribe := p.Subscribe(rec.observe)
	defer unsubscribe()

	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-allServed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for all polls to be served")
	}

	// the third response still has to be compared and fanned out
	waitFor(t, time.Second, func() bool { return rec.count() >= 2 }, "second notification")
	p.Stop()

	got := rec.ids()
	want := []string{"block_001", "block_002"}
	if len(got) != len(want) {
		t.Fatalf("observer called %d times with %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestPoller_ObserversRunInSubscriptionOrder verifies that all subscribed
// observers are invoked exactly once per change, in the order they were
// registered.
func TestPoller_ObserversRunInSubscriptionOrder(t *testing.T) {
	ts, _ := sequenceServer(t, []string{"block_001"})

	var mu sync.Mutex
	var order []string

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(time.Minute),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	for _, name := range []string{"first", "second", "third"} {
		name := name
		defer p.Subscribe(func(Snapshot) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})()
	}

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "all observers to fire")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("observer order = %v, want %v", order, want)
		}
	}
}

// TestPoller_UnsubscribeRemovesObserver verifies that an unsubscribed
// observer receives no notifications while others still do, and that
// calling the unsubscribe function twice is a safe no-op.
func TestPoller_UnsubscribeRemovesObserver(t *testing.T) {
	ts, _ := sequenceServer(t, []string{"block_001"})

	removed := &recorder{}
	kept := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(time.Minute),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	unsubscribe := p.Subscribe(removed.observe)
	keepUnsub := p.Subscribe(kept.observe)
	defer keepUnsub()

	unsubscribe()
	unsubscribe() // second call must be a no-op

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool { return kept.count() == 1 }, "kept observer to fire")

	if removed.count() != 0 {
		t.Errorf("unsubscribed observer was called %d times, want 0", removed.count())
	}
}

// TestPoller_UnsubscribeDuringFanOutTakesEffectNextCycle verifies that an
// observer unsubscribing another mid-fan-out does not affect the
// notifications already scheduled for that cycle.
func TestPoller_UnsubscribeDuringFanOutTakesEffectNextCycle(t *testing.T) {
	ts, _ := sequenceServer(t, []string{"block_001", "block_002"})

	second := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithFallback(false),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	var secondUnsub func()
	var once sync.Once
	firstUnsub := p.Subscribe(func(Snapshot) {
		once.Do(func() { secondUnsub() })
	})
	defer firstUnsub()
	secondUnsub = p.Subscribe(second.observe)

	p.Start(context.Background())
	defer p.Stop()

	// the second observer must still see block_001 (same fan-out as the
	// unsubscribe) but never block_002
	waitFor(t, 2*time.Second, func() bool { return second.count() >= 1 }, "first fan-out")

	waitFor(t, 2*time.Second, func() bool {
		snap, ok := p.Latest()
		return ok && snap.BlockID == "block_002"
	}, "second block to be observed")
	p.Stop()

	ids := second.ids()
	if len(ids) != 1 || ids[0] != "block_001" {
		t.Errorf("unsubscribed-mid-fan-out observer saw %v, want [block_001]", ids)
	}
}

// TestPoller_ObserverPanicDoesNotAbortFanOut verifies that a panicking
// observer neither prevents later observers from running nor crashes the
// poll cycle.
func TestPoller_ObserverPanicDoesNotAbortFanOut(t *testing.T) {
	ts, _ := sequenceServer(t, []string{"block_001", "block_002"})

	rec := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithFallback(false),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	defer p.Subscribe(func(Snapshot) { panic("observer exploded") })()
	defer p.Subscribe(rec.observe)()

	p.Start(context.Background())
	defer p.Stop()

	// both changes must reach the healthy observer despite the panic
	waitFor(t, 2*time.Second, func() bool { return rec.count() == 2 }, "both notifications")

	ids := rec.ids()
	if ids[0] != "block_001" || ids[1] != "block_002" {
		t.Errorf("healthy observer saw %v, want [block_001 block_002]", ids)
	}
}

// TestPoller_FallbackSynthesizesOnFetchFailure verifies that a failing
// fetch degrades to a synthesized snapshot, marked Synthetic, and that
// the failure never escapes the poll cycle.
func TestPoller_FallbackSynthesizesOnFetchFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	rec := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(time.Minute),
		WithLogger(testLogger()),
		WithSynthesizer(func(prev Snapshot, seen bool) Snapshot {
			return Snapshot{BlockID: "block_fallback", Height: prev.Height + 1}
		}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	defer p.Subscribe(rec.observe)()

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool { return rec.count() == 1 }, "fallback notification")

	rec.mu.Lock()
	snap := rec.snaps[0]
	rec.mu.Unlock()

	if snap.BlockID != "block_fallback" {
		t.Errorf("BlockID = %q, want %q", snap.BlockID, "block_fallback")
	}
	if !snap.Synthetic {
		t.Error("fallback snapshot not marked Synthetic")
	}

	latest, ok := p.Latest()
	if !ok || latest.BlockID != "block_fallback" {
		t.Errorf("Latest() = %+v, %t, want the fallback snapshot", latest, ok)
	}
}

// TestPoller_DefaultSynthesizerProducesFreshIdentifiers verifies that the
// built-in fallback generator produces block_-prefixed identifiers that
// differ between polls, so each failure still triggers a change.
func TestPoller_DefaultSynthesizerProducesFreshIdentifiers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer ts.Close()

	rec := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	defer p.Subscribe(rec.observe)()

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool { return rec.count() >= 2 }, "two fallback notifications")
	p.Stop()

	ids := rec.ids()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if len(id) < len("block_") || id[:len("block_")] != "block_" {
			t.Errorf("synthetic identifier %q missing block_ prefix", id)
		}
		if seen[id] {
			t.Errorf("synthetic identifier %q repeated", id)
		}
		seen[id] = true
	}
}

// TestPoller_NoFallbackDropsFailedPolls verifies that with fallback
// disabled a failing fetch produces no notification and no snapshot.
func TestPoller_NoFallbackDropsFailedPolls(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	rec := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithFallback(false),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	defer p.Subscribe(rec.observe)()

	p.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	p.Stop()

	if rec.count() != 0 {
		t.Errorf("observer called %d times for failed polls, want 0", rec.count())
	}
	if _, ok := p.Latest(); ok {
		t.Error("Latest() reports a snapshot after only failed polls")
	}
}

// TestPoller_StartWhileRunningIsNoOp verifies that a second Start does
// not spawn a second polling loop.
func TestPoller_StartWhileRunningIsNoOp(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeStatus(w, "block_001", 1)
	}))
	defer ts.Close()

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(time.Minute),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool { return requests.Load() >= 1 }, "immediate poll")
	time.Sleep(100 * time.Millisecond)

	if got := requests.Load(); got != 1 {
		t.Errorf("saw %d immediate polls after double Start, want 1", got)
	}
	if !p.Running() {
		t.Error("Running() = false while started")
	}
}

// TestPoller_StopIsIdempotent verifies Stop before Start and repeated
// Stop calls are safe no-ops.
func TestPoller_StopIsIdempotent(t *testing.T) {
	ts, _ := sequenceServer(t, []string{"block_001"})

	p, err := New(WithEndpoint(ts.URL), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	// must not panic or deadlock
	p.Stop()

	p.Start(context.Background())
	p.Stop()
	p.Stop()

	if p.Running() {
		t.Error("Running() = true after Stop")
	}
}

// TestPoller_StopHaltsPolling verifies that no further polls fire after
// Stop, and that the poller leaks no goroutines.
func TestPoller_StopHaltsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeStatus(w, "block_001", 1)
	}))

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return requests.Load() >= 2 }, "a few polls")
	p.Stop()

	after := requests.Load()
	time.Sleep(100 * time.Millisecond)
	if got := requests.Load(); got != after {
		t.Errorf("polls continued after Stop: %d -> %d", after, got)
	}

	ts.Close()
}

// TestPoller_RestartAfterStop verifies a stopped poller can be started
// again and resumes polling.
func TestPoller_RestartAfterStop(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeStatus(w, "block_001", 1)
	}))
	defer ts.Close()

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(time.Minute),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return requests.Load() == 1 }, "first immediate poll")
	p.Stop()

	p.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return requests.Load() == 2 }, "immediate poll after restart")
	p.Stop()
}

// TestPoller_StopCancelsInFlightFetch verifies that Stop cancels a hung
// fetch rather than waiting it out, and that the late response never
// reaches observers.
func TestPoller_StopCancelsInFlightFetch(t *testing.T) {
	reached := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(reached)
		<-r.Context().Done()
	}))
	defer ts.Close()

	rec := &recorder{}

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(time.Minute),
		WithTimeout(time.Minute),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	defer p.Subscribe(rec.observe)()

	p.Start(context.Background())

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never reached the server")
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight fetch")
	}

	if rec.count() != 0 {
		t.Errorf("observer called %d times after Stop cancelled the fetch, want 0", rec.count())
	}
}

// TestPoller_ContextCancellationStopsPolling verifies the polling loop
// also exits when the caller's context is cancelled.
func TestPoller_ContextCancellationStopsPolling(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeStatus(w, "block_001", 1)
	}))
	defer ts.Close()

	p, err := New(
		WithEndpoint(ts.URL),
		WithInterval(20*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return requests.Load() >= 2 }, "a few polls")
	cancel()
	time.Sleep(50 * time.Millisecond)

	after := requests.Load()
	time.Sleep(100 * time.Millisecond)
	if got := requests.Load(); got != after {
		t.Errorf("polls continued after context cancellation: %d -> %d", after, got)
	}

	p.Stop()
}

// TestPoller_LatestBeforeFirstPoll verifies Latest reports no snapshot
// before any poll completed.
func TestPoller_LatestBeforeFirstPoll(t *testing.T) {
	p, err := New(WithEndpoint("http://localhost:0/api/status"), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if snap, ok := p.Latest(); ok {
		t.Errorf("Latest() = %+v, true before any poll, want ok=false", snap)
	}
}

// TestSnapshot_JSONRoundTrip verifies the snapshot wire tags match the
// envelope the backend serves.
func TestSnapshot_JSONRoundTrip(t *testing.T) {
	in := Snapshot{
		BlockID:   "block_cafe",
		Height:    7,
		Hash:      "0xdeadbeef",
		CreatedAt: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Active:    true,
		Category:  "dapp",
		Synthetic: true,
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() returned error: %v", err)
	}

	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() returned error: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
