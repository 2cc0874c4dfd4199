package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// LoadFunc seeds the log once at construction time.
type LoadFunc func() ([]core.Record, error)

// SaveFunc receives exactly the batch just merged (not the full log). It is
// invoked best-effort after each successful Append.
type SaveFunc func(batch []core.Record) error

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Load is invoked once at construction to seed the log.
	Load LoadFunc
	// Save is invoked after each successful Append with the merged batch.
	Save SaveFunc
	// Logger receives merge and persistence diagnostics.
	Logger logging.Logger
	// PersistenceErrorBuffer sizes the observability channel for save failures.
	PersistenceErrorBuffer int
}

// Store is the ordered conversation log shared by all agents in one
// coordination session. All methods are safe for concurrent use; every
// mutation executes under a single critical section covering both the
// merge-by-key logic and the order observed by subsequent reads.
type Store struct {
	mu      sync.Mutex
	records []core.Record
	index   map[string]int // effective key -> log position

	save        SaveFunc
	persistMu   sync.Mutex
	pending     [][]core.Record // batches awaiting the save callback, in merge order
	persistErrs chan error
	logger      logging.Logger
}

// New constructs a Store with optional overrides. When a load callback is
// configured it is invoked once and its result seeds the log (bypassing the
// save callback).
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}, PersistenceErrorBuffer: 16}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{
		index:       make(map[string]int),
		save:        opts.Save,
		persistErrs: make(chan error, opts.PersistenceErrorBuffer),
		logger:      opts.Logger,
	}

	if opts.Load != nil {
		records, err := opts.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load records: %w", err)
		}
		s.ReplaceAll(records)
	}

	return s, nil
}

// Append validates and merges a batch of records into the log. The batch is
// atomic: a malformed record rejects the whole batch and nothing is merged.
// Appends preserve arrival order; key matches replace the existing record in
// place, preserving its original position. Records carrying only the sentinel
// identity always append as distinct entries.
func (s *Store) Append(records ...core.Record) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			if mErr, ok := err.(*core.MalformedRecordError); ok {
				mErr.Index = i
			}
			return fmt.Errorf("rejecting batch: %w", err)
		}
	}

	s.mu.Lock()
	var appended, replaced int
	for _, r := range records {
		key, ok := r.EffectiveKey()
		if ok {
			if pos, exists := s.index[key]; exists {
				s.records[pos] = r
				replaced++
				continue
			}
			s.index[key] = len(s.records)
		}
		s.records = append(s.records, r)
		appended++
	}
	total := len(s.records)
	if s.save != nil && len(records) > 0 {
		s.pending = append(s.pending, records)
	}
	s.mu.Unlock()

	if ml, ok := s.logger.(logging.MergeLogger); ok {
		ml.LogStoreMerge(appended, replaced, total)
	} else {
		s.logger.Debug("store merged batch appended=%d replaced=%d total=%d", appended, replaced, total)
	}

	s.persist()

	return nil
}

// persist drains the pending queue through the save callback, outside the
// merge critical section. Batches are enqueued under the merge lock and
// drained under persistMu, so the callback observes them in exactly the order
// they merged even when Appends race. Failures are logged and pushed onto the
// observability channel, never returned: the in-memory merge has already
// succeeded and is authoritative.
func (s *Store) persist() {
	if s.save == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		start := time.Now()
		err := s.save(batch)
		if pl, ok := s.logger.(logging.PersistenceLogger); ok {
			pl.LogPersistence(len(batch), time.Since(start), err)
		} else if err != nil {
			s.logger.Warn("store persistence hook failed after %s: %v", time.Since(start), err)
		}
		if err != nil {
			select {
			case s.persistErrs <- err:
			default:
			}
		}
	}
}

// PersistenceFailures exposes save-callback errors for observability paths.
// The channel is buffered; when full, older failures are dropped silently.
func (s *Store) PersistenceFailures() <-chan error { return s.persistErrs }

// All returns a stable-ordered copy of every record currently in the log.
func (s *Store) All() []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]core.Record, len(s.records))
	copy(records, s.records)
	return records
}

// Len reports the current number of log entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ForAgent returns the subsequence of the log visible to an agent/caller pair.
// When caller is nil the agent is an entry point: all entry-point agents share
// one unified view (every human/root originated record), so any agent
// reachable from the user-facing entry sees the same conversational history.
// For a named caller the view is the pairwise exchange in both directions.
func (s *Store) ForAgent(agent string, caller *string) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := make([]core.Record, 0, len(s.records))
	for _, r := range s.records {
		if caller == nil {
			if r.CallerAgent == nil {
				visible = append(visible, r)
			}
			continue
		}
		if matchesPair(r, agent, *caller) || matchesPair(r, *caller, agent) {
			visible = append(visible, r)
		}
	}
	return visible
}

func matchesPair(r core.Record, agent, caller string) bool {
	return r.Agent == agent && r.CallerAgent != nil && *r.CallerAgent == caller
}

// ReplaceAll resets the log to exactly the given records, used for "start new
// session" semantics. It bypasses the persistence callback. Records are merged
// through the same effective-key rule so the rebuilt index stays consistent.
func (s *Store) ReplaceAll(records []core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
	s.index = make(map[string]int)
	for _, r := range records {
		key, ok := r.EffectiveKey()
		if ok {
			if pos, exists := s.index[key]; exists {
				s.records[pos] = r
				continue
			}
			s.index[key] = len(s.records)
		}
		s.records = append(s.records, r)
	}
}
