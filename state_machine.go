package auth

import (
	"context"
	"slices"
	"sync"
	"time"
)

// SessionState is the authentication state of the device.
type SessionState string

const (
	StateSignedOut            SessionState = "signed_out"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateSignedIn             SessionState = "signed_in"
)

func (s SessionState) String() string {
	return string(s)
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Username string
	Metadata map[string]any
}

// TransitionContext is passed into hooks after a state change.
type TransitionContext struct {
	From SessionState
	To   SessionState
	Meta TransitionMetadata
}

// TransitionHook is executed after a transition is applied.
type TransitionHook func(ctx context.Context, tc TransitionContext)

// TransitionOption customizes a single transition.
type TransitionOption func(*TransitionMetadata)

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*SessionStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *SessionStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish state changes.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *SessionStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *SessionStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithAfterTransitionHook adds a hook executed after every applied transition.
func WithAfterTransitionHook(h TransitionHook) StateMachineOption {
	return func(sm *SessionStateMachine) {
		if h != nil {
			sm.hooks = append(sm.hooks, h)
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(meta *TransitionMetadata) {
		meta.Reason = reason
	}
}

// WithTransitionUser records which user the transition concerns.
func WithTransitionUser(username string) TransitionOption {
	return func(meta *TransitionMetadata) {
		meta.Username = username
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(meta *TransitionMetadata) {
		if len(metadata) == 0 {
			return
		}
		if meta.Metadata == nil {
			meta.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			meta.Metadata[k] = v
		}
	}
}

// SessionStateMachine owns the current authentication state and the graph of
// allowed changes. It starts in StateSignedOut.
type SessionStateMachine struct {
	mu           sync.RWMutex
	state        SessionState
	transitions  map[SessionState]map[SessionState]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
	hooks        []TransitionHook
}

// NewSessionStateMachine returns a machine in StateSignedOut.
func NewSessionStateMachine(opts ...StateMachineOption) *SessionStateMachine {
	sm := &SessionStateMachine{
		state: StateSignedOut,
		transitions: map[SessionState]map[SessionState]struct{}{
			StateSignedOut: {
				StateAwaitingConfirmation: {},
				StateSignedIn:             {},
			},
			StateAwaitingConfirmation: {
				StateSignedOut: {},
				StateSignedIn:  {},
			},
			StateSignedIn: {
				StateSignedOut: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Current returns the current state.
func (sm *SessionStateMachine) Current() SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// AddHook registers h to run after every applied transition. It is safe to
// call while transitions are in flight.
func (sm *SessionStateMachine) AddHook(h TransitionHook) {
	if h == nil {
		return
	}
	sm.mu.Lock()
	sm.hooks = append(sm.hooks, h)
	sm.mu.Unlock()
}

func (sm *SessionStateMachine) hookList() []TransitionHook {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.hooks)
}

// CanTransition reports whether from -> to is part of the graph.
func (sm *SessionStateMachine) CanTransition(from, to SessionState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves the machine to target. Requesting the current state is a
// no-op.
func (sm *SessionStateMachine) Transition(ctx context.Context, target SessionState, opts ...TransitionOption) error {
	meta := TransitionMetadata{}
	for _, opt := range opts {
		if opt != nil {
			opt(&meta)
		}
	}

	sm.mu.Lock()
	from := sm.state
	if from == target {
		sm.mu.Unlock()
		return nil
	}
	if !sm.CanTransition(from, target) {
		sm.mu.Unlock()
		return WrapError(ErrInvalidTransition, nil, map[string]any{
			"from": from,
			"to":   target,
		})
	}
	sm.state = target
	hooks := slices.Clone(sm.hooks)
	sm.mu.Unlock()

	tc := TransitionContext{From: from, To: target, Meta: meta}
	for _, hook := range hooks {
		hook(ctx, tc)
	}

	sm.recordActivity(ctx, tc)
	return nil
}

func (sm *SessionStateMachine) recordActivity(ctx context.Context, tc TransitionContext) {
	metadata := map[string]any{}
	if tc.Meta.Reason != "" {
		metadata["reason"] = tc.Meta.Reason
	}
	for k, v := range tc.Meta.Metadata {
		metadata[k] = v
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	event := ActivityEvent{
		EventType:  ActivityEventSessionStateChanged,
		Username:   tc.Meta.Username,
		FromState:  tc.From,
		ToState:    tc.To,
		Metadata:   metadata,
		OccurredAt: sm.now(),
	}

	if err := normalizeActivitySink(sm.activitySink).Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}
