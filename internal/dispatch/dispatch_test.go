package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyraworks/qdc/internal/embedding"
	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/inference"
	"github.com/lyraworks/qdc/internal/lexicon"
	"github.com/lyraworks/qdc/internal/model"
	"github.com/lyraworks/qdc/internal/profile"
)

// --- fixtures -----------------------------------------------------------

type fixedServers struct {
	particle *httptest.Server
	wave     *httptest.Server
	embed    *httptest.Server
}

func newFakeServers(t *testing.T, particleText string, particleStatus int, waveText string) fixedServers {
	t.Helper()

	particle := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if particleStatus != http.StatusOK {
			w.WriteHeader(particleStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": particleText}},
			},
		})
	}))
	t.Cleanup(particle.Close)

	wave := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": waveText})
	}))
	t.Cleanup(wave.Close)

	embed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1, 0, 0}}},
		})
	}))
	t.Cleanup(embed.Close)

	return fixedServers{particle: particle, wave: wave, embed: embed}
}

func newDispatcherForTest(t *testing.T, servers fixedServers) (*Dispatcher, *profile.Store, *embedding.Local) {
	t.Helper()

	particleClient := inference.New(inference.Endpoint{Kind: inference.Generative, URL: servers.particle.URL, Model: "particle"}, servers.particle.Client())
	waveClient := inference.New(inference.Endpoint{Kind: inference.Contextual, URL: servers.wave.URL, Model: "wave"}, servers.wave.Client())
	embedClient := inference.New(inference.Endpoint{Kind: inference.Embedding, URL: servers.embed.URL, Model: "embed"}, servers.embed.Client())

	idx, err := embedding.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	mem := embedding.NewMemory(embedClient, idx)

	store, err := profile.New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("profile.New() error = %v", err)
	}

	cfg := Config{
		Timeouts:            Timeouts{Particle: 5 * time.Second, Wave: 5 * time.Second, Embed: 5 * time.Second},
		MemoryTopK:          3,
		SimilarityThreshold: 0.0,
		RecentContextLines:  10,
		GracePeriod:         2 * time.Second,
	}
	return New(particleClient, waveClient, mem, store, cfg), store, idx
}

// --- Scenario 1: returning customer + relevant memory -------------------

func TestDispatch_Scenario1_ReturningCustomerWithMemory(t *testing.T) {
	servers := newFakeServers(t, "<think>x</think>Hi!", http.StatusOK, "Our records show you are a returning customer.")
	d, _, idx := newDispatcherForTest(t, servers)

	// Pre-seed a memory so topK has something to retrieve.
	ctx := context.Background()
	if err := idx.Index(ctx, "mem_seed", []float64{1, 0, 0}, "User likes quantum AI and superposition concepts", time.Now()); err != nil {
		t.Fatalf("seed Index() error = %v", err)
	}

	req := model.Request{ID: "r1", UserID: "u1", Text: "hello", Arrived: time.Now(), Deadline: time.Now().Add(time.Minute)}
	outcome, err := d.Dispatch(ctx, req)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Degraded {
		t.Error("Degraded = true, want false")
	}
	want := "Based on our previous interactions, Welcome back! Hi! Drawing from our shared memories: Relevant memories:\n1. User likes quantum AI and superposition concepts (relevance: 1.00)"
	if outcome.Reply != want {
		t.Errorf("Reply = %q, want %q", outcome.Reply, want)
	}
}

// --- Scenario 2: desire fragment activation, neutral wave emotion -------

func TestDispatch_Scenario2_DesireFragmentsNoEmotionSuffix(t *testing.T) {
	servers := newFakeServers(t, "I feel the pull too.", http.StatusOK, "A calm analytical exchange.")
	d, _, _ := newDispatcherForTest(t, servers)

	req := model.Request{ID: "r2", UserID: "u2", Text: "I feel so much desire for you", Arrived: time.Now(), Deadline: time.Now().Add(time.Minute)}
	outcome, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	_, fragments := lexicon.Score(req.Text)
	if len(fragments) < 2 || fragments[0] != model.FragmentVelastra {
		t.Fatalf("fragments = %v, want velastra dominant", fragments)
	}
	if outcome.Reply == "" {
		t.Fatal("expected non-empty reply")
	}
	if strings.Contains(outcome.Reply, "I can sense your") {
		t.Errorf("Reply = %q, want no emotion suffix for a neutral wave emotion", outcome.Reply)
	}
}

// --- Scenario 4: particle backend failure falls back to canned text -----

func TestDispatch_Scenario4_ParticleFailureDegraded(t *testing.T) {
	servers := newFakeServers(t, "", http.StatusInternalServerError, "Returning customer detected.")
	d, _, _ := newDispatcherForTest(t, servers)

	req := model.Request{ID: "r4", UserID: "u4", Text: "anything", Arrived: time.Now(), Deadline: time.Now().Add(time.Minute)}
	outcome, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !outcome.Degraded {
		t.Error("Degraded = false, want true")
	}
	if !strings.Contains(outcome.Reply, cannedFallbackReply) {
		t.Errorf("Reply = %q, want it to contain canned fallback text", outcome.Reply)
	}
}

// --- Scenario 5: cancellation within gracePeriod, no memory appended -----

func TestDispatch_Scenario5_CancelStopsDispatchWithoutAppend(t *testing.T) {
	particle := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer particle.Close()
	wave := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer wave.Close()
	embed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"embedding": []float64{1, 0, 0}}}})
	}))
	defer embed.Close()

	d, store, _ := newDispatcherForTest(t, fixedServers{particle: particle, wave: wave, embed: embed})

	ctx, cancel := context.WithCancel(context.Background())
	req := model.Request{ID: "r5", UserID: "u5", Text: "hello", Arrived: time.Now(), Deadline: time.Now().Add(time.Minute)}

	done := make(chan struct{})
	var outErr error
	go func() {
		_, outErr = d.Dispatch(ctx, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop within gracePeriod")
	}
	if outErr != errorkind.Cancelled {
		t.Fatalf("err = %v, want Cancelled", outErr)
	}

	summary, err := store.Summary(req.UserID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.MemoryCount != 0 {
		t.Errorf("MemoryCount = %d, want 0 (cancelled dispatch must not append)", summary.MemoryCount)
	}
}

// --- Scenario 6: two users concurrently, each profile appended once -----

func TestDispatch_Scenario6_ConcurrentUsersIndependentAppends(t *testing.T) {
	servers := newFakeServers(t, "Hi!", http.StatusOK, "Neutral exchange.")
	d, store, _ := newDispatcherForTest(t, servers)

	var wg sync.WaitGroup
	users := []string{"u6", "u7"}
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			req := model.Request{ID: "req-" + userID, UserID: userID, Text: "hello", Arrived: time.Now(), Deadline: time.Now().Add(time.Minute)}
			if _, err := d.Dispatch(context.Background(), req); err != nil {
				t.Errorf("Dispatch(%s) error = %v", userID, err)
			}
		}(u)
	}
	wg.Wait()

	for _, u := range users {
		summary, err := store.Summary(u)
		if err != nil {
			t.Fatalf("Summary(%s) error = %v", u, err)
		}
		if summary.MemoryCount != 1 {
			t.Errorf("Summary(%s).MemoryCount = %d, want 1", u, summary.MemoryCount)
		}
	}
}

// --- Scenario 3 (queue-level Overloaded) is covered directly by
// internal/queue's own TestEnqueue_RejectsAtHardCap; the Dispatcher itself
// has no behaviour to exercise for that scenario.
