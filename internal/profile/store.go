// Package profile implements the per-user Profile Store (C3): append-oriented
// persistent storage plus a context-line preview index kept inside each
// profile.json and read back from disk on every lookup. File
// writes follow the teacher's temp-file + fsync + rename pattern so a reader
// never observes a partially written profile.
package profile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/model"
)

const (
	previewMaxChars = 100
	previewEllipsis = "..."
)

// Store is the Profile Store. One Store instance owns an entire on-disk
// root directory; callers never touch profile/memory files directly.
type Store struct {
	root     string
	template Template

	mu        sync.Mutex // guards userLocks map creation
	userLocks map[string]*sync.Mutex
}

// Template is the default-profile template restored from
// original_source/modules/memory_system.py: fields synthesised for a user
// seen for the first time.
type Template struct {
	BasicInformation        model.BasicInformation
	CognitiveProfile        map[string]string
	CommunicationGuidelines map[string]string
	RelationshipToAI        map[string]string
}

func minimalDefaultTemplate() Template {
	return Template{
		BasicInformation:        model.BasicInformation{},
		CognitiveProfile:        map[string]string{},
		CommunicationGuidelines: map[string]string{},
		RelationshipToAI:        map[string]string{},
	}
}

// New creates a Store rooted at root. If templatePath is non-empty and
// readable, it is loaded as the default profile template; otherwise an
// in-code minimal default (empty strings, totalMemories=0) is used.
func New(root, templatePath string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	tmpl := minimalDefaultTemplate()
	if strings.TrimSpace(templatePath) != "" {
		if loaded, err := loadTemplate(templatePath); err == nil {
			tmpl = loaded
		}
	}
	return &Store{
		root:      root,
		template:  tmpl,
		userLocks: make(map[string]*sync.Mutex),
	}, nil
}

func loadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return Template{}, err
	}
	return tmpl, nil
}

func (s *Store) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.root, userID)
}

func (s *Store) profilePath(userID string) string {
	return filepath.Join(s.userDir(userID), "profile.json")
}

func (s *Store) memoriesDir(userID string) string {
	return filepath.Join(s.userDir(userID), "memories")
}

// onDiskProfile mirrors the §6 persisted JSON shape.
type onDiskProfile struct {
	UserID                  string                 `json:"userId"`
	BasicInformation        model.BasicInformation `json:"basicInformation"`
	CognitiveProfile        map[string]string      `json:"cognitiveProfile"`
	CommunicationGuidelines map[string]string      `json:"communicationGuidelines"`
	RelationshipToAI        map[string]string      `json:"relationshipToAi"`
	MemoryContextIndex      struct {
		TotalMemories int      `json:"totalMemories"`
		ContextLines  []string `json:"contextLines"`
	} `json:"memoryContextIndex"`
	SystemMetadata struct {
		CreatedDate         time.Time `json:"createdDate"`
		LastUpdated         time.Time `json:"lastUpdated"`
		InteractionCount    int       `json:"interactionCount"`
		ProfileCompleteness float64   `json:"profileCompleteness"`
		TrustLevel          float64   `json:"trustLevel"`
	} `json:"systemMetadata"`
}

func toDomain(userID string, d onDiskProfile) model.Profile {
	return model.Profile{
		UserID:                  userID,
		BasicInformation:        d.BasicInformation,
		CognitiveProfile:        d.CognitiveProfile,
		CommunicationGuidelines: d.CommunicationGuidelines,
		RelationshipToAI:        d.RelationshipToAI,
		MemoryContextIndex: model.MemoryContextIndex{
			TotalMemories: d.MemoryContextIndex.TotalMemories,
			ContextLines:  d.MemoryContextIndex.ContextLines,
		},
		SystemMetadata: model.SystemMetadata{
			CreatedDate:         d.SystemMetadata.CreatedDate,
			LastUpdated:         d.SystemMetadata.LastUpdated,
			InteractionCount:    d.SystemMetadata.InteractionCount,
			ProfileCompleteness: d.SystemMetadata.ProfileCompleteness,
			TrustLevel:          d.SystemMetadata.TrustLevel,
		},
	}
}

func fromDomain(p model.Profile) onDiskProfile {
	var d onDiskProfile
	d.UserID = p.UserID
	d.BasicInformation = p.BasicInformation
	d.CognitiveProfile = p.CognitiveProfile
	d.CommunicationGuidelines = p.CommunicationGuidelines
	d.RelationshipToAI = p.RelationshipToAI
	d.MemoryContextIndex.TotalMemories = p.MemoryContextIndex.TotalMemories
	d.MemoryContextIndex.ContextLines = p.MemoryContextIndex.ContextLines
	d.SystemMetadata.CreatedDate = p.SystemMetadata.CreatedDate
	d.SystemMetadata.LastUpdated = p.SystemMetadata.LastUpdated
	d.SystemMetadata.InteractionCount = p.SystemMetadata.InteractionCount
	d.SystemMetadata.ProfileCompleteness = p.SystemMetadata.ProfileCompleteness
	d.SystemMetadata.TrustLevel = p.SystemMetadata.TrustLevel
	return d
}

// GetProfile returns the existing profile for userID, or synthesises one
// from the default template. A synthesised profile is not written to disk
// until the next successful mutation (AppendMemory).
func (s *Store) GetProfile(userID string) (model.Profile, error) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.readProfileLocked(userID)
}

func (s *Store) readProfileLocked(userID string) (model.Profile, error) {
	data, err := os.ReadFile(s.profilePath(userID))
	if os.IsNotExist(err) {
		return s.syntheticProfile(userID), nil
	}
	if err != nil {
		return model.Profile{}, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	var d onDiskProfile
	if err := json.Unmarshal(data, &d); err != nil {
		return model.Profile{}, errorkind.Wrap(errorkind.StoreFailed, err)
	}
	return toDomain(userID, d), nil
}

func (s *Store) syntheticProfile(userID string) model.Profile {
	now := time.Now()
	return model.Profile{
		UserID:                  userID,
		BasicInformation:        s.template.BasicInformation,
		CognitiveProfile:        copyMap(s.template.CognitiveProfile),
		CommunicationGuidelines: copyMap(s.template.CommunicationGuidelines),
		RelationshipToAI:        copyMap(s.template.RelationshipToAI),
		MemoryContextIndex:      model.MemoryContextIndex{},
		SystemMetadata: model.SystemMetadata{
			CreatedDate: now,
			LastUpdated: now,
		},
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// writeProfileAtomic writes p to the user's profile.json via a temp file in
// the same directory, fsync, then rename — so a reader never observes a
// partially written file.
func (s *Store) writeProfileAtomic(userID string, p model.Profile) error {
	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	data, err := json.MarshalIndent(fromDomain(p), "", "  ")
	if err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*.json")
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
	if err := tmp.Close(); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	if err := os.Rename(tmpPath, s.profilePath(userID)); err != nil {
		return errorkind.Wrap(errorkind.StoreFailed, err)
	}
	return nil
}

// AppendMemory writes a new MemoryEntry and appends its context line to the
// profile. The memory file is written first; the profile update is atomic,
// so if it fails no context line is added, no counter is bumped, and an
// error is returned, while the already-written memory file stays on disk.
func (s *Store) AppendMemory(userID string, entry model.MemoryEntry) (string, error) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	memID := newMemID(entry.Timestamp, entry.Content)
	entry.ID = memID
	entry.UserID = userID

	memDir := s.memoriesDir(userID)
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		return "", errorkind.Wrap(errorkind.StoreFailed, err)
	}
	memData, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", errorkind.Wrap(errorkind.StoreFailed, err)
	}
	memPath := filepath.Join(memDir, memID+".json")
	if err := os.WriteFile(memPath, memData, 0o644); err != nil {
		return "", errorkind.Wrap(errorkind.StoreFailed, err)
	}

	profile, err := s.readProfileLocked(userID)
	if err != nil {
		return "", err
	}
	line := contextLine(memID, entry.Type, entry.Timestamp, entry.Content)
	profile.MemoryContextIndex.ContextLines = append(profile.MemoryContextIndex.ContextLines, line)
	profile.MemoryContextIndex.TotalMemories++
	profile.SystemMetadata.LastUpdated = time.Now()
	profile.SystemMetadata.InteractionCount++

	if err := s.writeProfileAtomic(userID, profile); err != nil {
		return "", err
	}
	return memID, nil
}

// newMemID produces "mem_<unix-seconds>_<8-digit hash of content>".
func newMemID(ts time.Time, content string) string {
	sum := sha256.Sum256([]byte(content))
	hash := binary.BigEndian.Uint32(sum[:4]) % 100000000
	return fmt.Sprintf("mem_%d_%08d", ts.Unix(), hash)
}

// contextLine renders the bit-exact format:
// "<memId>|<memType>|<iso8601>|<first 100 chars of content>...".
func contextLine(memID, memType string, ts time.Time, content string) string {
	preview := content
	runes := []rune(preview)
	if len(runes) > previewMaxChars {
		preview = string(runes[:previewMaxChars]) + previewEllipsis
	} else {
		preview = preview + previewEllipsis
	}
	return strings.Join([]string{memID, memType, ts.UTC().Format(time.RFC3339), preview}, "|")
}

// SearchContext performs a case-insensitive substring search over the
// profile's context lines, ranking by occurrence count (relevance), ties
// broken most-recent first.
func (s *Store) SearchContext(userID, query string, limit int) ([]model.ContextMatch, error) {
	profile, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	var candidates []rankedMatch
	for i, line := range profile.MemoryContextIndex.ContextLines {
		fields := strings.SplitN(line, "|", 4)
		if len(fields) != 4 {
			continue
		}
		relevance := strings.Count(strings.ToLower(fields[3]), needle)
		if needle != "" && relevance == 0 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, fields[2])
		candidates = append(candidates, rankedMatch{
			match: model.ContextMatch{
				MemID:     fields[0],
				MemType:   fields[1],
				Timestamp: ts,
				Preview:   fields[3],
				Relevance: relevance,
			},
			idx: i,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.match.Relevance != b.match.Relevance {
			return a.match.Relevance > b.match.Relevance
		}
		return a.idx > b.idx
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]model.ContextMatch, len(candidates))
	for i, c := range candidates {
		out[i] = c.match
	}
	return out, nil
}

// rankedMatch pairs a ContextMatch with its original position so ties on
// relevance can break most-recent-first.
type rankedMatch struct {
	match model.ContextMatch
	idx   int
}

// Summary reports a quick profile overview for diagnostics/CLI status.
func (s *Store) Summary(userID string) (ProfileSummary, error) {
	path := s.profilePath(userID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ProfileSummary{HasProfile: false}, nil
	}
	profile, err := s.GetProfile(userID)
	if err != nil {
		return ProfileSummary{}, err
	}
	types := make(map[string]struct{})
	for _, line := range profile.MemoryContextIndex.ContextLines {
		fields := strings.SplitN(line, "|", 4)
		if len(fields) == 4 {
			types[fields[1]] = struct{}{}
		}
	}
	memTypes := make([]string, 0, len(types))
	for t := range types {
		memTypes = append(memTypes, t)
	}
	return ProfileSummary{
		HasProfile:  true,
		MemoryCount: profile.MemoryContextIndex.TotalMemories,
		MemoryTypes: memTypes,
		LastUpdated: profile.SystemMetadata.LastUpdated,
	}, nil
}

// ProfileSummary is the result of Store.Summary.
type ProfileSummary struct {
	HasProfile  bool
	MemoryCount int
	MemoryTypes []string
	LastUpdated time.Time
}

// RecentContextLines returns the last n context lines (most recent last, as
// stored), used by the Dispatcher when building the particle prompt.
func RecentContextLines(p model.Profile, n int) []string {
	lines := p.MemoryContextIndex.ContextLines
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
