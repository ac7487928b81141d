// Package supervisor implements the Supervisor (C7): dependency-ordered
// construction of the dispatch core's components, a Submit entry point for
// ingress adapters, and graceful shutdown bounded by a drain period.
// Grounded on cmd/orchestrator/main.go's construction order and
// signal-driven shutdown.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyraworks/qdc/internal/config"
	"github.com/lyraworks/qdc/internal/dispatch"
	"github.com/lyraworks/qdc/internal/embedding"
	"github.com/lyraworks/qdc/internal/inference"
	"github.com/lyraworks/qdc/internal/model"
	"github.com/lyraworks/qdc/internal/profile"
	"github.com/lyraworks/qdc/internal/queue"
)

// Supervisor owns the lifecycle of every C1-C6 component. It is built once
// via New and started once via Start; a second Start is a no-op.
type Supervisor struct {
	cfg config.Config

	profiles    *profile.Store
	memory      *embedding.Memory
	localMirror *embedding.Local
	queue       *queue.Queue

	archiver *archiver
	control  *controlServer

	started  atomic.Bool
	shutdown atomic.Bool

	runWg  sync.WaitGroup
	cancel context.CancelFunc
}

// New wires every component in dependency order: Profile Store, Inference
// Clients, Embedding Memory, Dispatcher, cancellation registry, Queue.
// Nothing is started yet.
func New(cfg config.Config) (*Supervisor, error) {
	profiles, err := profile.New(cfg.DataRoot, cfg.Profile.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("init profile store: %w", err)
	}

	particleClient, waveClient, embedClient := newInferenceClients(cfg)

	memory, localBackend, err := newMemory(cfg, embedClient)
	if err != nil {
		return nil, fmt.Errorf("init embedding memory: %w", err)
	}

	dispatchCfg := dispatch.Config{
		Timeouts: dispatch.Timeouts{
			Particle: time.Duration(cfg.Dispatch.ParticleTimeoutSeconds) * time.Second,
			Wave:     time.Duration(cfg.Dispatch.WaveTimeoutSeconds) * time.Second,
			Embed:    time.Duration(cfg.Dispatch.EmbedTimeoutSeconds) * time.Second,
		},
		MemoryTopK:          cfg.Synth.MemoryTopK,
		SimilarityThreshold: cfg.Memory.SimilarityThreshold,
		RecentContextLines:  cfg.Profile.RecentContextLines,
		GracePeriod:         time.Duration(cfg.Dispatch.GracePeriodSeconds) * time.Second,
	}
	dispatcher := dispatch.New(particleClient, waveClient, memory, profiles, dispatchCfg)

	cancelReg, err := queue.NewCancelRegistry(cfg.Queue.CancelRegistryRedisAddr)
	if err != nil {
		return nil, fmt.Errorf("init cancel registry: %w", err)
	}

	q := queue.New(cfg.Queue.MaxSize, cfg.Queue.Workers, 10*time.Second, dispatcher.Dispatch, cancelReg)

	var arch *archiver
	if cfg.Embedding.S3ArchiveBucket != "" {
		if localBackend != nil {
			a, err := newArchiver(cfg, localBackend)
			if err != nil {
				log.Warn().Err(err).Msg("s3 archival disabled: init failed")
			} else {
				arch = a
			}
		} else {
			log.Warn().Msg("s3 archival configured but embedding backend is not local; skipping")
		}
	}

	var ctl *controlServer
	if cfg.ControlSocket != "" {
		ctl = newControlServer(cfg.ControlSocket)
	}

	return &Supervisor{
		cfg:         cfg,
		profiles:    profiles,
		memory:      memory,
		localMirror: localBackend,
		queue:       q,
		archiver:    arch,
		control:     ctl,
	}, nil
}

// Start runs the Queue's worker pool, the optional control socket listener,
// and the optional S3 archival loop. A second call is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.runWg.Add(1)
	go func() {
		defer s.runWg.Done()
		s.queue.Run(runCtx)
	}()

	if s.control != nil {
		if err := s.control.start(s); err != nil {
			return fmt.Errorf("start control socket: %w", err)
		}
	}

	if s.archiver != nil {
		s.runWg.Add(1)
		go func() {
			defer s.runWg.Done()
			s.archiver.run(runCtx)
		}()
	}

	log.Info().Msg("supervisor started")
	return nil
}

// Submit enqueues req for dispatch, returning its queue position/ETA. The
// reply (or terminal error) is delivered asynchronously via onComplete.
func (s *Supervisor) Submit(req model.Request, onComplete queue.ReplyFunc) (queue.EnqueueResult, error) {
	return s.queue.Enqueue(req, onComplete)
}

// Cancel requests cancellation of a previously submitted, still-pending or
// in-flight Request by its queueID.
func (s *Supervisor) Cancel(queueID string) bool {
	return s.queue.Cancel(queueID)
}

// Status reports the caller's position in queue, if any.
func (s *Supervisor) Status(userID string) queue.Status {
	return s.queue.Status(userID)
}

// Shutdown drains the Queue: stops accepting new work, cancels
// already-queued work at once, lets in-flight work finish for up to
// cfg.Shutdown.DrainPeriodSeconds, then force-cancels anything still
// outstanding and tears down every component.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if !s.started.Load() {
		return nil
	}

	log.Info().Msg("supervisor shutdown: draining queue")
	s.queue.StopIntake()
	s.queue.Drain() // cancels still-queued work immediately; in-flight work is bounded below

	drainPeriod := time.Duration(s.cfg.Shutdown.DrainPeriodSeconds) * time.Second
	deadline := time.Now().Add(drainPeriod)
	for s.queue.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if n := s.queue.ActiveCount(); n > 0 {
		log.Warn().Int("stillActive", n).Dur("drainPeriod", drainPeriod).Msg("drain period exceeded; force-cancelling outstanding work")
	}

	if s.cancel != nil {
		s.cancel() // propagates to every in-flight dispatchCtx, cancelling anything still running
	}
	if s.control != nil {
		s.control.stop()
	}

	s.runWg.Wait()

	// memory.Close() always reaches the local mirror: directly when the
	// backend is local, and transitively through Qdrant.Close() otherwise.
	if err := s.memory.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing embedding memory")
	}

	log.Info().Msg("supervisor stopped")
	return nil
}

func newInferenceClients(cfg config.Config) (particle, wave, embed *inference.Client) {
	particle = inference.New(inference.Endpoint{
		Kind:  inference.Generative,
		URL:   cfg.Inference.GenerativeURL,
		Model: cfg.Inference.GenerativeModel,
	}, nil)
	wave = inference.New(inference.Endpoint{
		Kind:  inference.Contextual,
		URL:   cfg.Inference.ContextualURL,
		Model: cfg.Inference.ContextualModel,
	}, nil)
	embed = inference.New(inference.Endpoint{
		Kind:  inference.Embedding,
		URL:   cfg.Inference.EmbeddingURL,
		Model: cfg.Inference.EmbeddingModel,
	}, nil)
	return particle, wave, embed
}
