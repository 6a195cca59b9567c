package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Credential operations are owned by the account flows, not the coordinator.
// These sentinels direct callers there.
var (
	ErrUseSignInFlow    = errors.New("password sign-in is handled by the account sign-in flow")
	ErrUseSignUpFlow    = errors.New("registration is handled by the account sign-up flow")
	ErrUseFederatedFlow = errors.New("google sign-in is handled by the federated sign-in flow")
)

// SessionUser is the profile slice of a session state.
type SessionUser struct {
	UID           uuid.UUID `json:"uid"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
}

// State is a session snapshot. A nil User means signed out. Loading is true
// between session start and the durable role lookup finishing; the Role field
// holds the client default until then.
type State struct {
	User    *SessionUser `json:"user"`
	Role    string       `json:"role"`
	Loading bool         `json:"loading"`
}

const stateBuffer = 4

// Coordinator tracks per-user session state and pushes snapshots to
// subscribers. On session start it publishes immediately with the default
// client role, then resolves the durable role in the background and publishes
// again. A failed role lookup keeps the default: practitioners whose profile
// read fails are treated as clients until the next resolution.
type Coordinator struct {
	provider *Provider
	roles    RoleResolver
	log      zerolog.Logger

	mu       sync.RWMutex
	states   map[uuid.UUID]State
	gens     map[uuid.UUID]int
	watchers map[uuid.UUID]map[int]chan State
	nextSub  int
}

// NewCoordinator creates a coordinator and subscribes it to the provider's
// session events.
func NewCoordinator(provider *Provider, roles RoleResolver, log zerolog.Logger) *Coordinator {
	co := &Coordinator{
		provider: provider,
		roles:    roles,
		log:      log,
		states:   make(map[uuid.UUID]State),
		gens:     make(map[uuid.UUID]int),
		watchers: make(map[uuid.UUID]map[int]chan State),
	}
	provider.OnSessionChange(co.handleSessionEvent)
	return co
}

func (co *Coordinator) handleSessionEvent(ev SessionEvent) {
	co.mu.Lock()
	co.gens[ev.UID]++
	gen := co.gens[ev.UID]
	co.mu.Unlock()

	if ev.Started {
		go co.beginSession(ev.UID, gen)
		return
	}
	go co.endSession(ev.UID, gen)
}

func (co *Coordinator) beginSession(uid uuid.UUID, gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := co.provider.CurrentUser(ctx, uid)
	if err != nil {
		// The session is real even when the profile read fails. Publish a
		// minimal user rather than suppressing the state change.
		co.log.Warn().Err(err).Str("uid", uid.String()).Msg("session profile fetch failed")
		user = &SessionUser{UID: uid}
	}

	co.publishIfCurrent(uid, gen, State{User: user, Role: RoleClient, Loading: true})

	role := RoleClient
	if co.roles != nil {
		resolved, err := co.roles.RoleOf(ctx, uid)
		switch {
		case err != nil:
			co.log.Warn().Err(err).Str("uid", uid.String()).Msg("role resolution failed, keeping client default")
		case resolved != "":
			role = resolved
		}
	}
	co.publishIfCurrent(uid, gen, State{User: user, Role: role, Loading: false})
}

func (co *Coordinator) endSession(uid uuid.UUID, gen int) {
	co.publishIfCurrent(uid, gen, State{})
}

// publishIfCurrent stores and fans out a snapshot unless a newer session
// event for the user has superseded gen. Slow subscribers lose intermediate
// snapshots rather than stalling the publisher.
func (co *Coordinator) publishIfCurrent(uid uuid.UUID, gen int, st State) {
	co.mu.Lock()
	if co.gens[uid] != gen {
		co.mu.Unlock()
		return
	}
	if st.User == nil {
		delete(co.states, uid)
	} else {
		co.states[uid] = st
	}
	subs := make([]chan State, 0, len(co.watchers[uid]))
	for _, ch := range co.watchers[uid] {
		subs = append(subs, ch)
	}
	co.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- st:
		default:
			co.log.Debug().Str("uid", uid.String()).Msg("dropping session snapshot for slow subscriber")
		}
	}
}

// Current returns the session snapshot for uid. Unknown users read as signed
// out.
func (co *Coordinator) Current(uid uuid.UUID) State {
	co.mu.RLock()
	defer co.mu.RUnlock()
	return co.states[uid]
}

// Subscribe delivers the current snapshot immediately, then every subsequent
// snapshot for uid. The returned stop function releases the subscription and
// closes the channel.
func (co *Coordinator) Subscribe(uid uuid.UUID) (<-chan State, func()) {
	ch := make(chan State, stateBuffer)

	co.mu.Lock()
	co.nextSub++
	id := co.nextSub
	if co.watchers[uid] == nil {
		co.watchers[uid] = make(map[int]chan State)
	}
	co.watchers[uid][id] = ch
	current := co.states[uid]
	co.mu.Unlock()

	ch <- current

	var once sync.Once
	stop := func() {
		once.Do(func() {
			co.mu.Lock()
			delete(co.watchers[uid], id)
			if len(co.watchers[uid]) == 0 {
				delete(co.watchers, uid)
			}
			co.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop
}

// ReloadUser refreshes the profile slice of an active session, for instance
// after email verification.
func (co *Coordinator) ReloadUser(ctx context.Context, uid uuid.UUID) error {
	user, err := co.provider.CurrentUser(ctx, uid)
	if err != nil {
		return err
	}

	co.mu.Lock()
	st, ok := co.states[uid]
	gen := co.gens[uid]
	co.mu.Unlock()
	if !ok {
		return nil
	}

	st.User = user
	co.publishIfCurrent(uid, gen, st)
	return nil
}

// SignOut revokes the user's sessions through the provider, which in turn
// publishes the signed-out snapshot.
func (co *Coordinator) SignOut(ctx context.Context, uid uuid.UUID) error {
	return co.provider.SignOut(ctx, uid)
}

// RequestPasswordReset passes through to the provider.
func (co *Coordinator) RequestPasswordReset(ctx context.Context, email string) error {
	return co.provider.RequestPasswordReset(ctx, email)
}

// SendVerificationEmail passes through to the provider.
func (co *Coordinator) SendVerificationEmail(ctx context.Context, uid uuid.UUID) error {
	return co.provider.SendVerificationEmail(ctx, uid)
}

// SignInWithPassword is intentionally not implemented here.
func (co *Coordinator) SignInWithPassword(ctx context.Context, email, password string) error {
	return ErrUseSignInFlow
}

// SignUpWithPassword is intentionally not implemented here.
func (co *Coordinator) SignUpWithPassword(ctx context.Context, email, password string) error {
	return ErrUseSignUpFlow
}

// SignInWithGoogle is intentionally not implemented here.
func (co *Coordinator) SignInWithGoogle(ctx context.Context) error {
	return ErrUseFederatedFlow
}
