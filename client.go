package auth

import (
	"context"
	"time"
)

// Client is the authentication and session client. It keeps no session in
// memory: every accessor asks the provider again.
type Client struct {
	provider     IdentityProvider
	tokens       *TokenStore
	machine      *SessionStateMachine
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewClient returns a client talking to provider and persisting tokens in
// storage under DefaultNamespace.
func NewClient(provider IdentityProvider, storage Storage) *Client {
	c := &Client{
		provider:     provider,
		tokens:       NewTokenStore(storage, DefaultNamespace),
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
	c.machine = c.newMachine()
	return c
}

// WithNamespace changes the key namespace of the token store.
func (c *Client) WithNamespace(namespace string) *Client {
	c.tokens = NewTokenStore(c.tokens.storage, namespace)
	return c
}

func (c *Client) WithLogger(logger Logger) *Client {
	if logger != nil {
		c.logger = logger
		c.machine = c.rebuildMachine()
	}
	return c
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (c *Client) WithActivitySink(sink ActivitySink) *Client {
	c.activitySink = normalizeActivitySink(sink)
	c.machine = c.rebuildMachine()
	return c
}

// WithClock injects the clock used to stamp activity events.
func (c *Client) WithClock(clock func() time.Time) *Client {
	if clock != nil {
		c.now = clock
		c.machine = c.rebuildMachine()
	}
	return c
}

// WithStateHook registers a hook called after every session state change.
// Hooks may be added after construction; the other With methods replace the
// state machine and belong to construction only.
func (c *Client) WithStateHook(hook TransitionHook) *Client {
	c.machine.AddHook(hook)
	return c
}

// TokenStore exposes the store used for persisted tokens.
func (c *Client) TokenStore() *TokenStore {
	return c.tokens
}

// State returns the current session state.
func (c *Client) State() SessionState {
	return c.machine.Current()
}

func (c *Client) newMachine() *SessionStateMachine {
	return NewSessionStateMachine(
		WithStateMachineActivitySink(c.activitySink),
		WithStateMachineLogger(c.logger),
		WithStateMachineClock(c.now),
	)
}

// rebuildMachine keeps the current state and hooks when options change.
func (c *Client) rebuildMachine() *SessionStateMachine {
	sm := c.newMachine()
	if c.machine != nil {
		sm.state = c.machine.Current()
		sm.hooks = c.machine.hookList()
	}
	return sm
}

func (c *Client) transition(ctx context.Context, target SessionState, username, reason string) {
	err := c.machine.Transition(ctx, target,
		WithTransitionUser(username),
		WithTransitionReason(reason),
	)
	if err != nil {
		c.logger.Debug("session state unchanged (%s -> %s): %v", c.machine.Current(), target, err)
	}
}

func (c *Client) emit(ctx context.Context, eventType ActivityEventType, username, subjectID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Username:   username,
		SubjectID:  subjectID,
		Metadata:   metadata,
		OccurredAt: c.now(),
	}

	if err := normalizeActivitySink(c.activitySink).Record(ctx, event); err != nil {
		c.logger.Warn("activity sink error for %s: %v", eventType, err)
	}
}
