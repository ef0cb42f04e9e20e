// Package auth implements the broker session lifecycle: auth mode
// resolution, cache-first login, token refresh, and pluggable session
// persistence. Vendors describe their login behavior declaratively through
// Flows; the Manager drives the same state machine around those hooks for
// every broker.
package auth

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
)

// Flows declares one broker's login behavior. A nil hook means the broker
// does not support that path.
type Flows struct {
	BrokerID       string
	DefaultMode    domain.AuthMode
	SupportedModes []domain.AuthMode

	// LoginManual reads pre-obtained tokens from configuration.
	LoginManual func(ctx context.Context) (*Session, error)
	// LoginAuto performs the broker's full programmatic login.
	LoginAuto func(ctx context.Context) (*Session, error)
	// RefreshAuto renews the session without a full re-login. It receives
	// the current session (possibly nil) for its refresh token.
	RefreshAuto func(ctx context.Context, current *Session) (*Session, error)
}

// Manager owns the session lifecycle for one broker client.
type Manager struct {
	flows Flows
	mode  domain.AuthMode
	store Store
	log   zerolog.Logger

	mu      sync.RWMutex
	session *Session
}

// NewManager validates the configured auth mode against the broker's
// supported modes and wires the session store.
func NewManager(flows Flows, cfg config.Config, store Store, log zerolog.Logger) (*Manager, error) {
	mode := cfg.AuthMode(flows.DefaultMode)
	if mode != domain.AuthManual && mode != domain.AuthAuto {
		return nil, errs.UnsupportedFeature(fmt.Sprintf(
			"unknown auth_mode %q, valid values are %q and %q",
			mode, domain.AuthManual, domain.AuthAuto))
	}
	if !slices.Contains(flows.SupportedModes, mode) {
		supported := make([]string, len(flows.SupportedModes))
		for i, m := range flows.SupportedModes {
			supported[i] = string(m)
		}
		sort.Strings(supported)
		return nil, errs.UnsupportedFeature(fmt.Sprintf(
			"%s does not support auth_mode=%q, supported: %s",
			flows.BrokerID, mode, strings.Join(supported, ", ")))
	}

	return &Manager{
		flows: flows,
		mode:  mode,
		store: store,
		log:   log.With().Str("component", "auth").Str("broker", flows.BrokerID).Logger(),
	}, nil
}

// Mode returns the resolved auth mode.
func (m *Manager) Mode() domain.AuthMode { return m.mode }

// Login authenticates using the configured mode, preferring an unexpired
// cached session to avoid a network round-trip on every construction.
func (m *Manager) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, err := m.store.Load(ctx, m.flows.BrokerID)
	if err != nil {
		m.log.Warn().Err(err).Msg("Session cache unavailable, performing fresh login")
	}
	if cached != nil && !cached.IsExpired() {
		m.log.Debug().Time("expires_at", cached.ExpiresAt).Msg("Using cached session")
		m.session = cached
		return nil
	}

	session, err := m.login(ctx)
	if err != nil {
		return err
	}
	m.setAndPersist(ctx, session)
	return nil
}

func (m *Manager) login(ctx context.Context) (*Session, error) {
	if m.mode == domain.AuthManual {
		if m.flows.LoginManual == nil {
			return nil, errs.UnsupportedFeature(fmt.Sprintf(
				"%s does not support manual login", m.flows.BrokerID))
		}
		return m.flows.LoginManual(ctx)
	}

	if m.flows.LoginAuto == nil {
		return nil, errs.UnsupportedFeature(fmt.Sprintf(
			"%s does not support automated login", m.flows.BrokerID))
	}
	return m.flows.LoginAuto(ctx)
}

// Refresh renews the session. Manual mode re-reads tokens from
// configuration since the operator may have pasted a new one; auto mode
// runs the broker's renewal flow. Concurrent callers serialize so the
// broker sees one renewal at a time.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var session *Session
	var err error
	if m.mode == domain.AuthAuto {
		if m.flows.RefreshAuto == nil {
			return errs.UnsupportedFeature(fmt.Sprintf(
				"%s does not support automated token refresh", m.flows.BrokerID))
		}
		session, err = m.flows.RefreshAuto(ctx, m.session)
	} else {
		session, err = m.login(ctx)
	}
	if err != nil {
		return err
	}
	m.setAndPersist(ctx, session)
	return nil
}

// setAndPersist installs the new session and caches it. A failed cache
// write is logged, not returned: the in-memory session is already valid.
func (m *Manager) setAndPersist(ctx context.Context, session *Session) {
	m.session = session
	if session == nil {
		return
	}
	if err := m.store.Save(ctx, m.flows.BrokerID, *session); err != nil {
		m.log.Warn().Err(err).Msg("Failed to cache session")
	}
}

// Session returns a copy of the current session, or ok=false before login.
func (m *Manager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// AccessToken returns the current access token, or "" before login.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}
