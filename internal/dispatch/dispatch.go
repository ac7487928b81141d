// Package dispatch implements the Dispatcher (C6): per Request, it fans out
// a particle (generative) and wave (contextual) inference call concurrently,
// serialises an embedding lookup after both join, synthesises one reply
// deterministically, and appends the exchange to the Profile Store.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyraworks/qdc/internal/embedding"
	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/inference"
	"github.com/lyraworks/qdc/internal/lexicon"
	"github.com/lyraworks/qdc/internal/model"
	"github.com/lyraworks/qdc/internal/observability"
	"github.com/lyraworks/qdc/internal/profile"
	"github.com/lyraworks/qdc/internal/queue"
)

// Timeouts bundles the dispatch-stage deadlines (spec.md §4.6.2).
type Timeouts struct {
	Particle time.Duration
	Wave     time.Duration
	Embed    time.Duration
}

// Config is the synthesis/memory configuration the Dispatcher consults.
type Config struct {
	Timeouts            Timeouts
	MemoryTopK          int
	SimilarityThreshold float64
	RecentContextLines  int
	GracePeriod         time.Duration
}

// Dispatcher orchestrates one Request end to end (spec.md §4.6.1).
type Dispatcher struct {
	particle *inference.Client
	wave     *inference.Client
	memory   *embedding.Memory
	profiles *profile.Store
	cfg      Config
}

// New builds a Dispatcher. particle must speak the Generative endpoint kind
// and wave the Contextual kind; memory composes the embedding endpoint with
// an Index backend.
func New(particle, wave *inference.Client, memory *embedding.Memory, profiles *profile.Store, cfg Config) *Dispatcher {
	return &Dispatcher{particle: particle, wave: wave, memory: memory, profiles: profiles, cfg: cfg}
}

// particleResult carries the particle stage's outcome plus timing, used by
// synthesis and the personalization-score formula.
type particleResult struct {
	text     string
	degraded bool
	elapsed  time.Duration
}

// Dispatch runs a Request to completion. Its signature matches
// queue.Handler so a bound method value (d.Dispatch) is wired directly into
// queue.New.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.Request) (queue.Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "dispatch.run")
	defer span.End()
	log := observability.LoggerWithTrace(ctx).With().Str("user_id", req.UserID).Str("request_id", req.ID).Logger()

	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(10 * time.Minute)
	}

	emotion, fragments := lexicon.Score(req.Text)

	profileRecord, err := d.profiles.GetProfile(req.UserID)
	if err != nil {
		return queue.Outcome{}, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	contextLines := profile.RecentContextLines(profileRecord, d.cfg.RecentContextLines)

	particleDeadline := earlier(deadline, time.Now().Add(d.cfg.Timeouts.Particle))
	waveDeadline := earlier(deadline, time.Now().Add(d.cfg.Timeouts.Wave))

	var pResult particleResult
	var wResult waveResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pResult = d.runParticle(gctx, req, profileRecord, contextLines, emotion, fragments, particleDeadline)
		return nil
	})
	g.Go(func() error {
		wResult = d.runWave(gctx, req, waveDeadline)
		return nil
	})
	_ = g.Wait() // both stages always substitute a fallback rather than error; see runParticle/runWave
	if ctx.Err() != nil {
		log.Info().Msg("dispatch cancelled during particle/wave fanout")
		return queue.Outcome{}, errorkind.Cancelled
	}
	if pResult.degraded && wResult.Degraded && deadline.Sub(time.Now()) <= 0 {
		log.Info().Msg("particle and wave both failed with no time remaining")
		return queue.Outcome{}, errorkind.Timeout
	}

	embedDeadline := earlier(deadline, time.Now().Add(d.cfg.Timeouts.Embed))
	searchKey := buildEmbeddingSearchKey(pResult.text, wResult.ContextSummary)
	vector, fallback, err := d.memory.Embed(ctx, searchKey, embedDeadline)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return queue.Outcome{}, errorkind.Cancelled
		}
		return queue.Outcome{}, err
	}

	matches, err := d.memory.TopK(ctx, searchKey, vector, d.cfg.MemoryTopK, d.cfg.SimilarityThreshold, fallback)
	if err != nil {
		return queue.Outcome{}, err
	}

	if ctx.Err() != nil {
		return queue.Outcome{}, errorkind.Cancelled
	}

	memoryContext := buildMemoryContext(matches)
	reply := synthesize(pResult.text, wResult, memoryContext)
	degraded := pResult.degraded || wResult.Degraded || fallback

	particleConfidence := 1.0
	if pResult.degraded {
		particleConfidence = 0.0
	}
	score := personalizationScore(particleConfidence, emotion.NonZeroAxisCount(), pResult.elapsed.Seconds(), wResult.Elapsed.Seconds())
	log.Debug().Float64("personalization_score", score).Bool("degraded", degraded).Msg("synthesized reply")

	entry := model.MemoryEntry{
		UserID:         req.UserID,
		Timestamp:      time.Now(),
		Type:           "exchange",
		Content:        req.Text + " -> " + reply,
		EmotionWeights: emotion,
		Metadata: map[string]string{
			"degraded": boolString(degraded),
			"fallback": boolString(fallback),
		},
	}
	memID, err := d.profiles.AppendMemory(req.UserID, entry)
	if err != nil {
		return queue.Outcome{}, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	if err := d.memory.Index(ctx, memID, vector, entry.Content, entry.Timestamp); err != nil {
		log.Warn().Err(err).Msg("failed to index new memory; profile append already persisted")
	}

	return queue.Outcome{Reply: reply, Degraded: degraded}, nil
}

func (d *Dispatcher) runParticle(ctx context.Context, req model.Request, profileRecord model.Profile, contextLines []string, emotion model.EmotionState, fragments model.FragmentActivation, deadline time.Time) particleResult {
	system, user := buildParticlePrompt(req, profileRecord, contextLines, emotion, fragments)
	start := time.Now()
	result, err := d.particle.Call(ctx, []inference.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, inference.Params{Temperature: 0.8, TopP: 0.9, MaxTokens: 512}, deadline)
	elapsed := time.Since(start)
	if err != nil {
		return particleResult{text: cannedFallbackReply, degraded: true, elapsed: elapsed}
	}
	return particleResult{text: result.Text, elapsed: elapsed}
}

func (d *Dispatcher) runWave(ctx context.Context, req model.Request, deadline time.Time) waveResult {
	prompt := buildWavePrompt(req.UserID, req.Text)
	start := time.Now()
	result, err := d.wave.Call(ctx, []inference.Message{{Role: "user", Content: prompt}}, inference.Params{Temperature: 0.3, TopP: 0.9}, deadline)
	elapsed := time.Since(start)
	if err != nil {
		wr := degradedWaveResult()
		wr.Elapsed = elapsed
		return wr
	}
	wr := parseWaveResponse(result.Text)
	wr.Elapsed = elapsed
	return wr
}

// buildEmbeddingSearchKey concatenates the first 200 chars of the particle
// output with the wave summary, per spec.md §4.6.1 step 3.
func buildEmbeddingSearchKey(particleText, waveSummary string) string {
	p := particleText
	if r := []rune(p); len(r) > 200 {
		p = string(r[:200])
	}
	return p + " " + waveSummary
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
