package session

import (
	"log/slog"
	"time"

	"bugwars-sync/internal/auth"
	"bugwars-sync/internal/envelope"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/syncable"
)

const DefaultCheckInterval = 30 * time.Second

// Refresher delivers a refresh request to the authentication provider. The
// new token comes back later as an ordinary session update.
type Refresher interface {
	RequestRefresh(model.TokenRefreshRequest) bool
}

type RefresherFunc func(model.TokenRefreshRequest) bool

func (f RefresherFunc) RequestRefresh(req model.TokenRefreshRequest) bool { return f(req) }

// SenderRefresher sends the request as a TokenRefreshRequest envelope.
func SenderRefresher(s syncable.Sender) Refresher {
	return RefresherFunc(func(req model.TokenRefreshRequest) bool {
		return s.Send(envelope.TypeTokenRefreshRequest, req)
	})
}

type Options struct {
	Now           func() time.Time
	CheckInterval time.Duration
	// Sender acknowledges session updates. Optional.
	Sender    syncable.Sender
	Refresher Refresher
	// OnTokenChanged runs after an update replaced the access token.
	OnTokenChanged func(State)
}

// Manager owns the session state and schedules proactive token refreshes.
// Like the syncable registry it is driven by a single owner loop.
type Manager struct {
	now           func() time.Time
	checkInterval time.Duration
	sender        syncable.Sender
	refresher     Refresher
	onChanged     func(State)

	state       State
	phase       Phase
	lastCheck   time.Time
	requestedAt time.Time

	changes syncable.Listeners[State]
}

func NewManager(opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	return &Manager{
		now:           opts.Now,
		checkInterval: opts.CheckInterval,
		sender:        opts.Sender,
		refresher:     opts.Refresher,
		onChanged:     opts.OnTokenChanged,
	}
}

func (m *Manager) Snapshot() State { return m.state }

func (m *Manager) Phase() Phase { return m.phase }

// AccessToken returns the current token, or "" if there is none.
func (m *Manager) AccessToken() string { return m.state.AccessToken }

func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	return m.changes.Subscribe(fn)
}

// Apply replaces the session with u. It is the only way tokens change,
// whether they come from the initial login or from a refresh.
func (m *Manager) Apply(u model.SessionUpdate) {
	prev := m.state
	next := stateFromUpdate(u)
	if next.ExpiresAt == 0 && next.AccessToken != "" {
		if exp, err := auth.PeekExpiry(next.AccessToken); err == nil {
			next.ExpiresAt = exp
		} else {
			slog.Warn("session update without expiry", "user_id", next.UserID, "err", err)
		}
	}
	m.state = next
	if next.IsAuthenticated {
		m.phase = Authenticated
	} else {
		m.phase = Unauthenticated
	}
	m.requestedAt = time.Time{}

	slog.Info("session updated",
		"user_id", next.UserID,
		"authenticated", next.IsAuthenticated,
		"expires_at", next.ExpiresAt,
	)

	if m.sender != nil {
		m.sender.Send(envelope.TypeSessionReceived, model.SessionReceived{
			Success:         next.IsAuthenticated,
			UserID:          next.UserID,
			HasAccessToken:  next.AccessToken != "",
			HasRefreshToken: next.RefreshToken != "",
		})
	}

	now := m.now()
	m.lastCheck = now
	m.evaluate(now)

	m.changes.Notify(m.state)
	if next.AccessToken != prev.AccessToken && m.onChanged != nil {
		m.onChanged(m.state)
	}
}

// Check re-evaluates the token at most once per check interval.
func (m *Manager) Check(now time.Time) {
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.checkInterval {
		return
	}
	m.lastCheck = now
	m.evaluate(now)
}

func (m *Manager) evaluate(now time.Time) {
	if !m.state.IsAuthenticated {
		return
	}
	remaining := m.state.Remaining(now)
	switch {
	case remaining <= 0:
		slog.Warn("access token expired, forcing refresh", "user_id", m.state.UserID, "expired_for", -remaining)
		m.requestRefresh(now)
	case remaining < RefreshThreshold:
		if m.phase == RefreshPending && now.Sub(m.requestedAt) < RefreshRetryAfter {
			return
		}
		slog.Info("access token expiring, requesting refresh", "user_id", m.state.UserID, "remaining", remaining)
		m.requestRefresh(now)
	}
}

func (m *Manager) requestRefresh(now time.Time) {
	if m.state.RefreshToken == "" {
		slog.Warn("cannot refresh session without refresh token", "user_id", m.state.UserID)
		m.phase = Unauthenticated
		return
	}
	if m.refresher == nil {
		slog.Warn("no refresher configured", "user_id", m.state.UserID)
		return
	}
	req := model.TokenRefreshRequest{
		UserID:       m.state.UserID,
		RefreshToken: m.state.RefreshToken,
		Timestamp:    now.Unix(),
	}
	if !m.refresher.RequestRefresh(req) {
		slog.Warn("refresh request not delivered", "user_id", m.state.UserID)
		return
	}
	m.phase = RefreshPending
	m.requestedAt = now
}

// RefreshFailed ends a pending refresh. The session drops to
// unauthenticated; writes continue best-effort with whatever token is held.
func (m *Manager) RefreshFailed(reason string) {
	if m.phase != RefreshPending {
		return
	}
	slog.Warn("token refresh failed", "user_id", m.state.UserID, "reason", reason)
	m.phase = Unauthenticated
	m.requestedAt = time.Time{}
	m.changes.Notify(m.state)
}
