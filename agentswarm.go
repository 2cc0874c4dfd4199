// Package agentswarm provides a high-level façade over the coordination
// primitives (message store, delegation guard, lineage tracker & identity
// normalizer) enabling rapid construction of multi-agent swarms. Most
// applications interact with this package by:
//  1. Creating a Swarm via New() (optionally overriding the guard, logger or
//     persistence backend)
//  2. Registering agent definitions and the delegation links between them
//  3. Opening one coordination session per conversation (OpenSession) and
//     driving it via SendUserMessage / Delegate
//
// The façade delegates all coordination semantics to session.Session while
// keeping setup ergonomics concise. Defaults are safe for local development
// and testing; production deployments typically supply a durable store via
// WithSQLiteStore and a structured logger.
package agentswarm

import (
	"errors"
	"sync"

	"github.com/hupe1980/agentswarm/guard"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/session"
	"github.com/hupe1980/agentswarm/store"
	"github.com/hupe1980/agentswarm/store/sqlite"
)

// StoreOpener opens the persistence hooks for one session. The returned close
// function releases whatever the opener acquired; it may be nil.
type StoreOpener func(sessionID string) (store.LoadFunc, store.SaveFunc, func() error, error)

// Options configures the Swarm instance.
type Options struct {
	// Guard serializes delegations across every session the swarm opens.
	// Defaults to a fresh guard; supply a shared one to coordinate across
	// multiple swarms.
	Guard *guard.Guard

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// OpenStore supplies per-session persistence hooks. Nil keeps sessions
	// purely in memory.
	OpenStore StoreOpener
}

// WithSQLiteStore persists every session the swarm opens into the SQLite
// database at path, one row set per session id.
func WithSQLiteStore(path string) func(o *Options) {
	return func(o *Options) {
		o.OpenStore = func(sessionID string) (store.LoadFunc, store.SaveFunc, func() error, error) {
			st, err := sqlite.Open(path, sessionID)
			if err != nil {
				return nil, nil, nil, err
			}
			load, save := st.Hooks()
			return load, save, st.Close, nil
		}
	}
}

type registration struct {
	def    session.AgentDef
	optFns []func(o *session.AgentOptions)
}

// Swarm is the high-level façade aggregating shared agent definitions, the
// delegation guard and the persistence backend. Sessions opened from one
// swarm share the guard but keep fully isolated coordination state.
type Swarm struct {
	opts Options

	mu      sync.Mutex
	defs    []registration
	links   [][2]string
	closers []func() error
}

// New creates a Swarm with optional overrides.
func New(optFns ...func(o *Options)) *Swarm {
	opts := Options{
		Guard:  guard.New(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Swarm{opts: opts}
}

// RegisterAgent adds an agent definition applied to every session opened
// afterwards. Already-open sessions are not affected.
func (s *Swarm) RegisterAgent(def session.AgentDef, optFns ...func(o *session.AgentOptions)) {
	s.mu.Lock()
	s.defs = append(s.defs, registration{def: def, optFns: optFns})
	s.mu.Unlock()
}

// AllowDelegation permits sender to delegate to recipient in every session
// opened afterwards.
func (s *Swarm) AllowDelegation(sender, recipient string) {
	s.mu.Lock()
	s.links = append(s.links, [2]string{sender, recipient})
	s.mu.Unlock()
}

// OpenSession constructs a coordination session with the swarm's shared guard,
// logger and persistence hooks, and replays all registered agent definitions
// and delegation links into it. An empty id yields a fresh one.
func (s *Swarm) OpenSession(id string) (*session.Session, error) {
	s.mu.Lock()
	defs := make([]registration, len(s.defs))
	copy(defs, s.defs)
	links := make([][2]string, len(s.links))
	copy(links, s.links)
	s.mu.Unlock()

	var (
		load    store.LoadFunc
		save    store.SaveFunc
		closeFn func() error
	)
	if s.opts.OpenStore != nil {
		if id == "" {
			return nil, errors.New("a persistent swarm requires an explicit session id")
		}
		var err error
		load, save, closeFn, err = s.opts.OpenStore(id)
		if err != nil {
			return nil, err
		}
	}

	sess, err := session.New(func(o *session.Options) {
		o.ID = id
		o.Load = load
		o.Save = save
		o.Guard = s.opts.Guard
		o.Logger = s.opts.Logger
	})
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}

	for _, r := range defs {
		if err := sess.RegisterAgent(r.def, r.optFns...); err != nil {
			if closeFn != nil {
				_ = closeFn()
			}
			return nil, err
		}
	}
	for _, l := range links {
		if err := sess.AllowDelegation(l[0], l[1]); err != nil {
			if closeFn != nil {
				_ = closeFn()
			}
			return nil, err
		}
	}

	if closeFn != nil {
		s.mu.Lock()
		s.closers = append(s.closers, closeFn)
		s.mu.Unlock()
	}
	return sess, nil
}

// Close releases every persistence handle opened through the swarm.
func (s *Swarm) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for _, fn := range closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
