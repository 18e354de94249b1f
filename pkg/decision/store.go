package decision

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// recordSet is the on-disk shape of the store.
type recordSet struct {
	Version   int        `json:"version"`
	Decisions []Decision `json:"decisions"`
}

const recordSetVersion = 1

// Store persists decisions in a single JSON file. Writers replace the whole
// record set atomically (write-temp + rename) so a concurrent reader in
// another process never observes a partial write. A corrupt file degrades to
// "no reusable decision" — it is logged, never fatal.
type Store struct {
	mu     sync.Mutex
	path   string
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore creates a store backed by the file at path. A nil logger
// disables diagnostics.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, clock: time.Now, logger: logger}
}

// WithClock overrides the clock for deterministic testing.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Get returns the stored decision for (policyID, fingerprint). A hit
// requires an exact fingerprint match and an unexpired record; any mismatch
// reports absent, forcing a fresh prompt.
func (s *Store) Get(policyID, fingerprint string) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, d := range s.load().Decisions {
		if d.PolicyID == policyID && d.Fingerprint == fingerprint && !d.Expired(now) {
			return d, true
		}
	}
	return Decision{}, false
}

// Put records a decision, replacing any prior record for the same
// (policyID, fingerprint) and pruning expired records as it goes.
func (s *Store) Put(policyID, fingerprint, mode, justification string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	set := s.load()

	kept := set.Decisions[:0]
	for _, d := range set.Decisions {
		if d.Expired(now) {
			continue
		}
		if d.PolicyID == policyID && d.Fingerprint == fingerprint {
			continue
		}
		kept = append(kept, d)
	}
	set.Decisions = append(kept, Decision{
		PolicyID:      policyID,
		Fingerprint:   fingerprint,
		Mode:          mode,
		Justification: justification,
		CreatedAt:     now.UTC(),
		ExpiresAt:     now.Add(ttl).UTC(),
	})
	set.Version = recordSetVersion

	return s.save(set)
}

// Invalidate drops every record for policyID.
func (s *Store) Invalidate(policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.load()
	kept := set.Decisions[:0]
	for _, d := range set.Decisions {
		if d.PolicyID != policyID {
			kept = append(kept, d)
		}
	}
	set.Decisions = kept
	return s.save(set)
}

func (s *Store) load() recordSet {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("decision store unreadable, treating as empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return recordSet{Version: recordSetVersion}
	}

	var set recordSet
	if err := json.Unmarshal(data, &set); err != nil {
		s.logger.Warn("decision store corrupt, treating as empty",
			zap.String("path", s.path), zap.Error(err))
		return recordSet{Version: recordSetVersion}
	}
	return set
}

// save writes the whole record set to a temp file in the same directory and
// renames it over the store. The lock file is defense in depth only; the
// rename carries the atomicity guarantee.
func (s *Store) save(set recordSet) error {
	unlock := s.tryLock()
	defer unlock()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("decision: encode record set: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".decisions-*")
	if err != nil {
		return fmt.Errorf("decision: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("decision: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("decision: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("decision: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("decision: replace record set: %w", err)
	}
	return nil
}

// tryLock best-effort acquires a sibling lock file. Access is human-paced,
// so a failed acquisition is logged and ignored rather than blocking.
func (s *Store) tryLock() func() {
	lockPath := s.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Debug("decision store lock unavailable", zap.String("path", lockPath))
		return func() {}
	}
	f.Close()
	return func() { os.Remove(lockPath) }
}
