package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/guard"
	"github.com/hupe1980/agentswarm/lineage"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/normalize"
	"github.com/hupe1980/agentswarm/store"
)

// SendMessageToolName is the logical tool name recorded on delegation calls.
const SendMessageToolName = "send_message"

var (
	// ErrAgentNotRegistered indicates a sender or recipient lookup failed.
	ErrAgentNotRegistered = errors.New("agent not registered")
	// ErrDelegationNotAllowed indicates the sender has no delegation link to
	// the recipient in this session.
	ErrDelegationNotAllowed = errors.New("delegation not allowed")
)

// Turn describes one execution request handed to the external engine.
type Turn struct {
	SessionID string
	Agent     string
	Caller    *string // nil for human-originated turns
	RunID     string
	Message   string
	History   []core.Record
}

// TurnFunc executes one agent turn and returns the finalized records it
// produced. It is the boundary to the excluded execution engine; the session
// normalizes and appends whatever comes back.
type TurnFunc func(ctx context.Context, turn Turn) ([]core.Record, error)

// AgentDef is the immutable definition of one agent. Definitions may be
// shared across sessions; the session never mutates them.
type AgentDef struct {
	Name        string
	Description string
	Turn        TurnFunc
}

// AgentOptions holds per-agent configuration applied at registration time.
type AgentOptions struct {
	// SendPolicy selects how the guard serializes this agent's outbound
	// delegations. Defaults to per-recipient.
	SendPolicy guard.Policy
}

type registeredAgent struct {
	def    AgentDef
	policy guard.Policy
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// ID identifies the coordination session; defaults to a fresh uuid.
	ID string
	// Load seeds the conversation log once at session start.
	Load store.LoadFunc
	// Save receives each merged batch after a successful append.
	Save store.SaveFunc
	// Guard may be shared across sessions; state stays isolated per session id.
	Guard *guard.Guard
	// Logger receives coordination diagnostics.
	Logger logging.Logger
}

// Session is one isolated coordination session. All methods are safe for
// concurrent use by parallel agent runs.
type Session struct {
	id         string
	store      *store.Store
	guard      *guard.Guard
	tracker    *lineage.Tracker
	normalizer *normalize.Normalizer
	logger     logging.Logger

	mu         sync.RWMutex
	agents     map[string]registeredAgent
	recipients map[string]map[string]bool // sender -> allowed recipients
}

// New constructs a Session with optional overrides.
func New(optFns ...func(o *Options)) (*Session, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = core.NewID()
	}
	if opts.Guard == nil {
		opts.Guard = guard.New()
	}

	st, err := store.New(func(o *store.Options) {
		o.Load = opts.Load
		o.Save = opts.Save
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	return &Session{
		id:         opts.ID,
		store:      st,
		guard:      opts.Guard,
		tracker:    lineage.NewTracker(),
		normalizer: normalize.New(func(o *normalize.Options) { o.Logger = opts.Logger }),
		logger:     opts.Logger,
		agents:     make(map[string]registeredAgent),
		recipients: make(map[string]map[string]bool),
	}, nil
}

// ID returns the coordination session identifier.
func (s *Session) ID() string { return s.id }

// RegisterAgent makes an agent definition available in this session.
func (s *Session) RegisterAgent(def AgentDef, optFns ...func(o *AgentOptions)) error {
	if def.Name == "" {
		return fmt.Errorf("agent name must not be empty")
	}
	if def.Turn == nil {
		return fmt.Errorf("agent %q has no turn function", def.Name)
	}

	agentOpts := AgentOptions{SendPolicy: guard.PolicyPerRecipient}
	for _, fn := range optFns {
		fn(&agentOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[def.Name]; exists {
		return fmt.Errorf("agent %q already registered in session %s", def.Name, s.id)
	}
	s.agents[def.Name] = registeredAgent{def: def, policy: agentOpts.SendPolicy}
	return nil
}

// AllowDelegation permits sender to delegate to recipient within this session.
// Both agents must already be registered.
func (s *Session) AllowDelegation(sender, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[sender]; !ok {
		return fmt.Errorf("sender %q not registered in session %s", sender, s.id)
	}
	if _, ok := s.agents[recipient]; !ok {
		return fmt.Errorf("recipient %q not registered in session %s", recipient, s.id)
	}
	allowed, ok := s.recipients[sender]
	if !ok {
		allowed = make(map[string]bool)
		s.recipients[sender] = allowed
	}
	allowed[recipient] = true
	return nil
}

// Recipients lists the recipients sender may currently address in this session.
func (s *Session) Recipients(sender string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.recipients[sender] {
		names = append(names, name)
	}
	return names
}

func (s *Session) lookup(name string) (registeredAgent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[name]
	return a, ok
}

func (s *Session) delegationAllowed(sender, recipient string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recipients[sender][recipient]
}

// SendUserMessage starts a root run: the human addresses an entry-point agent
// directly. It appends the user message, executes the agent's turn against
// the unified entry-point view of the log, merges the normalized output and
// returns the final message text.
func (s *Session) SendUserMessage(ctx context.Context, agentName, message string) (string, error) {
	agent, ok := s.lookup(agentName)
	if !ok {
		return "", fmt.Errorf("agent %q in session %s: %w", agentName, s.id, ErrAgentNotRegistered)
	}

	runID := s.tracker.BeginRun(nil, agentName)

	userRec := core.NewMessageRecord(agentName, nil, message)
	userRec.RunID = runID
	if err := s.store.Append(userRec); err != nil {
		return "", fmt.Errorf("failed to append user message: %w", err)
	}

	records, err := agent.def.Turn(ctx, Turn{
		SessionID: s.id,
		Agent:     agentName,
		Caller:    nil,
		RunID:     runID,
		Message:   message,
		History:   s.store.ForAgent(agentName, nil),
	})
	if err != nil {
		return "", fmt.Errorf("agent %q turn failed: %w", agentName, err)
	}

	merged, err := s.mergeTurnOutput(records, agentName, nil, runID, nil)
	if err != nil {
		return "", err
	}

	return finalText(merged), nil
}

// DelegationResult is the structured outcome of one outbound delegation.
// Rejected results are recoverable tool feedback, not errors: the calling
// agent's own turn is expected to surface Reason to its caller.
type DelegationResult struct {
	Rejected bool
	Reason   string
	CallID   string
	RunID    string
	Output   string
}

// Delegate issues a guarded outbound delegation from sender to recipient. The
// guard entry brackets the entire recipient execution, including nested
// delegations; it is always released, also on failure, so the caller's
// timeout/cancellation path simply propagates through ctx.
func (s *Session) Delegate(ctx context.Context, sender, senderRunID, recipient, message string) (DelegationResult, error) {
	senderAgent, ok := s.lookup(sender)
	if !ok {
		return DelegationResult{}, fmt.Errorf("sender %q in session %s: %w", sender, s.id, ErrAgentNotRegistered)
	}
	recipientAgent, ok := s.lookup(recipient)
	if !ok {
		return DelegationResult{}, fmt.Errorf("recipient %q in session %s: %w", recipient, s.id, ErrAgentNotRegistered)
	}
	if !s.delegationAllowed(sender, recipient) {
		return DelegationResult{}, fmt.Errorf("delegation %s -> %s in session %s: %w", sender, recipient, s.id, ErrDelegationNotAllowed)
	}

	if !s.guard.TryBegin(s.id, sender, recipient, senderAgent.policy) {
		reason := fmt.Sprintf("a delegation from %q to %q is already in flight; wait for it to complete before sending again", sender, recipient)
		if senderAgent.policy == guard.PolicySingleFlight {
			reason = fmt.Sprintf("%q already has an outbound delegation in flight and is configured for one at a time", sender)
		}
		s.logger.Debug("delegation rejected session_id=%s sender=%s recipient=%s", s.id, sender, recipient)
		return DelegationResult{Rejected: true, Reason: reason}, nil
	}
	defer s.guard.End(s.id, sender, recipient)

	start := time.Now()

	callID := core.NewCallID()
	s.tracker.BindCall(callID, senderRunID)
	childRunID := s.tracker.BeginRun(&callID, recipient)

	args, _ := json.Marshal(map[string]string{"recipient": recipient, "message": message})

	callRec := core.NewFunctionCallRecord(recipient, &sender, callID, SendMessageToolName, string(args))
	callRec.RunID = senderRunID
	msgRec := core.NewMessageRecord(recipient, &sender, message)
	msgRec.RunID = childRunID
	msgRec.ParentRunID = &callID
	if err := s.store.Append(callRec, msgRec); err != nil {
		return DelegationResult{}, fmt.Errorf("failed to append delegation call: %w", err)
	}

	records, err := recipientAgent.def.Turn(ctx, Turn{
		SessionID: s.id,
		Agent:     recipient,
		Caller:    &sender,
		RunID:     childRunID,
		Message:   message,
		History:   s.store.ForAgent(recipient, &sender),
	})
	if err != nil {
		// Resolve the call anyway so the log never holds a dangling call.
		failRec := core.NewFunctionCallOutputRecord(recipient, &sender, callID, fmt.Sprintf("error: %v", err))
		failRec.RunID = childRunID
		failRec.ParentRunID = &callID
		if appendErr := s.store.Append(failRec); appendErr != nil {
			s.logger.Warn("failed to record delegation failure session_id=%s call_id=%s: %v", s.id, callID, appendErr)
		}
		s.logDelegation(sender, recipient, time.Since(start), err)
		return DelegationResult{CallID: callID, RunID: childRunID}, fmt.Errorf("delegation to %q failed: %w", recipient, err)
	}

	merged, err := s.mergeTurnOutput(records, recipient, &sender, childRunID, &callID)
	if err != nil {
		return DelegationResult{CallID: callID, RunID: childRunID}, err
	}

	output := finalText(merged)
	outRec := core.NewFunctionCallOutputRecord(recipient, &sender, callID, output)
	outRec.RunID = childRunID
	outRec.ParentRunID = &callID
	if err := s.store.Append(outRec); err != nil {
		return DelegationResult{CallID: callID, RunID: childRunID}, fmt.Errorf("failed to append delegation output: %w", err)
	}

	s.logDelegation(sender, recipient, time.Since(start), nil)

	return DelegationResult{CallID: callID, RunID: childRunID, Output: output}, nil
}

// logDelegation records a delegation outcome, preferring the structured
// helper when the configured logger provides it.
func (s *Session) logDelegation(sender, recipient string, dur time.Duration, err error) {
	if dl, ok := s.logger.(logging.DelegationLogger); ok {
		dl.LogDelegation(sender, recipient, dur, err == nil, err)
		return
	}
	if err != nil {
		s.logger.Error("delegation failed session_id=%s sender=%s recipient=%s duration=%s: %v", s.id, sender, recipient, dur, err)
		return
	}
	s.logger.Info("delegation completed session_id=%s sender=%s recipient=%s duration=%s", s.id, sender, recipient, dur)
}

// mergeTurnOutput normalizes a turn's finalized records, stamps ownership and
// lineage defaults, and appends them to the log.
func (s *Session) mergeTurnOutput(records []core.Record, agent string, caller *string, runID string, parent *string) ([]core.Record, error) {
	normalized, err := normalize.NormalizeBatch(records)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize turn output: %w", err)
	}
	for i := range normalized {
		if normalized[i].Agent == "" {
			normalized[i].Agent = agent
		}
		if normalized[i].CallerAgent == nil {
			normalized[i].CallerAgent = caller
		}
		if normalized[i].RunID == "" {
			normalized[i].RunID = runID
		}
		if normalized[i].ParentRunID == nil {
			normalized[i].ParentRunID = parent
		}
	}
	if err := s.store.Append(normalized...); err != nil {
		return nil, fmt.Errorf("failed to append turn output: %w", err)
	}
	return normalized, nil
}

// finalText returns the text of the last message-like record of a turn.
func finalText(records []core.Record) string {
	for i := len(records) - 1; i >= 0; i-- {
		switch records[i].Kind {
		case core.KindMessage:
			return records[i].Text()
		case core.KindHandoffOutput:
			return records[i].Output()
		}
	}
	return ""
}

// NormalizeEvent routes a live stream event through the session's normalizer,
// placing per-run state behind the session-scoped locking discipline.
func (s *Session) NormalizeEvent(ev core.StreamEvent) (core.StreamEvent, error) {
	return s.normalizer.NormalizeEvent(ev)
}

// EndRun discards normalizer state for a completed run stream.
func (s *Session) EndRun(runID string) { s.normalizer.EndRun(runID) }

// Records returns a stable-ordered copy of the full conversation log.
func (s *Session) Records() []core.Record { return s.store.All() }

// History returns the log subsequence visible to an agent/caller pair.
func (s *Session) History(agent string, caller *string) []core.Record {
	return s.store.ForAgent(agent, caller)
}

// Chain reconstructs the lineage of a run back to the root.
func (s *Session) Chain(runID string) []string { return s.tracker.ChainFor(runID) }

// Reset replaces the conversation log, bypassing the persistence callback.
// Used for "start new session" semantics.
func (s *Session) Reset(records []core.Record) { s.store.ReplaceAll(records) }

// Store exposes the underlying conversation log.
func (s *Session) Store() *store.Store { return s.store }

// Close releases guard state owned by this session. The session must not be
// used afterwards.
func (s *Session) Close() { s.guard.Release(s.id) }
