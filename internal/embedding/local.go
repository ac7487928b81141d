package embedding

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/model"
)

// entry is one indexed memory vector, kept in memory and mirrored to disk.
type entry struct {
	MemID     string    `json:"memId"`
	Vector    []float64 `json:"vector"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Local is the spec-mandated default Embedding Memory backend: an
// in-memory slice backed by a snapshot file plus an append-only sidecar
// log, replayed on startup. A single writer lock serialises Index calls;
// TopK reads a consistent snapshot of the slice under RLock so a
// concurrent Index is either fully visible or fully absent.
type Local struct {
	mu      sync.RWMutex
	entries []entry

	snapshotPath string
	logPath      string
	logFile      *os.File
}

// NewLocal loads root/_index/embeddings.snapshot (if present) then replays
// root/_index/embeddings.log on top of it.
func NewLocal(root string) (*Local, error) {
	dir := filepath.Join(root, "_index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	l := &Local{
		snapshotPath: filepath.Join(dir, "embeddings.snapshot"),
		logPath:      filepath.Join(dir, "embeddings.log"),
	}
	if err := l.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := l.replayLog(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	l.logFile = f
	return l, nil
}

func (l *Local) loadSnapshot() error {
	data, err := os.ReadFile(l.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	l.entries = entries
	return nil
}

func (l *Local) replayLog() error {
	f, err := os.Open(l.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		l.entries = append(l.entries, e)
	}
	return nil
}

func l2Normalize(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func innerProduct(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Index appends vector under memID to the in-memory slice and the
// append-only sidecar log. The in-memory append happens under the write
// lock only after the log write and sync succeed, so a concurrent TopK
// reader under RLock never observes a vector that failed to persist.
func (l *Local) Index(_ context.Context, memID string, vector []float64, content string, ts time.Time) error {
	e := entry{MemID: memID, Vector: l2Normalize(vector), Content: content, Timestamp: ts}

	data, err := json.Marshal(e)
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.logFile.Write(append(data, '\n')); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	if err := l.logFile.Sync(); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	l.entries = append(l.entries, e)
	return nil
}

// TopK returns the k highest inner-product matches scoring at or above
// similarityThreshold.
func (l *Local) TopK(_ context.Context, vector []float64, k int, similarityThreshold float64) ([]model.MemoryMatch, error) {
	query := l2Normalize(vector)

	l.mu.RLock()
	snapshot := make([]entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.RUnlock()

	matches := make([]model.MemoryMatch, 0, len(snapshot))
	for _, e := range snapshot {
		score := innerProduct(query, e.Vector)
		if score < similarityThreshold {
			continue
		}
		matches = append(matches, model.MemoryMatch{
			MemID:     e.MemID,
			Score:     score,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Recent returns the most-recently indexed entries with no similarity
// score, for fallback-mode keyword search.
func (l *Local) Recent(_ context.Context, limit int) ([]model.MemoryMatch, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.entries) - limit
	if start < 0 {
		start = 0
	}
	recent := l.entries[start:]
	out := make([]model.MemoryMatch, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		e := recent[i]
		out[len(recent)-1-i] = model.MemoryMatch{
			MemID:     e.MemID,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		}
	}
	return out, nil
}

// Snapshot flushes the current in-memory entries to the snapshot file and
// truncates the sidecar log, so the next startup replays nothing. Intended
// to be called periodically by the Supervisor.
func (l *Local) Snapshot() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(l.entries)
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	dir := filepath.Dir(l.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".embeddings-snapshot-*")
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, l.snapshotPath); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}

	if err := l.logFile.Close(); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	l.logFile = f
	return nil
}

// Close flushes a final snapshot and releases the log file handle.
func (l *Local) Close() error {
	if err := l.Snapshot(); err != nil {
		return err
	}
	return l.logFile.Close()
}

// SnapshotPaths exposes the on-disk snapshot+sidecar pair for the optional
// S3 archival step in the Supervisor.
func (l *Local) SnapshotPaths() (string, string) {
	return l.snapshotPath, l.logPath
}

var _ Index = (*Local)(nil)
