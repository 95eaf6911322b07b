package algolab

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
)

// skewMargin is subtracted from the session expiry so a token is renewed
// before the broker clock considers it dead.
const skewMargin = 2 * time.Minute

// SMSCodeFunc supplies the one-time SMS code during login. The bootstrap
// wires either an interactive prompt or an environment lookup.
type SMSCodeFunc func(ctx context.Context) (string, error)

// SessionManager owns the broker session: it authenticates on demand,
// caches the session hash until expiry, and keeps the session alive with a
// heartbeat. At most one authentication is ever in flight; concurrent
// callers block and share its result. A credential failure is latched and
// returned to every subsequent caller without further broker calls.
type SessionManager struct {
	client    *Client
	smsCode   SMSCodeFunc
	ttl       time.Duration
	heartbeat time.Duration

	mu        sync.Mutex
	hash      string
	expiresAt time.Time
	fatal     error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionManager builds the manager from config.
func NewSessionManager(cfg *infra.Config, client *Client, smsCode SMSCodeFunc) *SessionManager {
	return &SessionManager{
		client:    client,
		smsCode:   smsCode,
		ttl:       cfg.SessionTTL(),
		heartbeat: time.Duration(cfg.AlgoLab.HeartbeatIntervalSec) * time.Second,
	}
}

// Token returns a valid session hash, authenticating first if the cached
// one is missing or near expiry. Callers racing an expired session all wait
// on the same login; only one hits the broker.
func (s *SessionManager) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatal != nil {
		return "", s.fatal
	}
	if s.hash != "" && time.Until(s.expiresAt) > skewMargin {
		return s.hash, nil
	}

	hash, err := s.authenticate(ctx)
	if err != nil {
		if domain.IsFatalAuth(err) {
			s.fatal = err
			slog.Error("broker credentials rejected", slog.Any("error", err))
		}
		return "", err
	}

	s.hash = hash
	s.expiresAt = time.Now().Add(s.ttl)
	slog.Info("broker session established",
		slog.Time("expires_at", s.expiresAt))
	return hash, nil
}

// authenticate runs the full login flow. Caller holds the mutex.
func (s *SessionManager) authenticate(ctx context.Context) (string, error) {
	token, err := s.client.LoginUser(ctx)
	if err != nil {
		return "", err
	}

	code, err := s.smsCode(ctx)
	if err != nil {
		return "", err
	}

	return s.client.LoginUserControl(ctx, token, code)
}

// Invalidate discards the cached session so the next Token call
// re-authenticates. Called when the broker reports the session invalid.
func (s *SessionManager) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hash != "" {
		slog.Warn("broker session invalidated")
	}
	s.hash = ""
	s.expiresAt = time.Time{}
}

// Hash returns the cached session hash without triggering authentication.
// Empty means no live session.
func (s *SessionManager) Hash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hash == "" || time.Until(s.expiresAt) <= 0 {
		return ""
	}
	return s.hash
}

// StartHeartbeat launches the keep-alive loop. Each successful refresh
// extends the cached expiry; a session-invalid answer drops the cache so
// the next order call logs in again.
func (s *SessionManager) StartHeartbeat(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.heartbeatLoop(ctx)
}

// Stop terminates the heartbeat loop and waits for it.
func (s *SessionManager) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SessionManager) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hash := s.Hash()
			if hash == "" {
				continue
			}

			err := s.client.SessionRefresh(ctx, hash)
			switch {
			case err == nil:
				s.mu.Lock()
				if s.hash == hash {
					s.expiresAt = time.Now().Add(s.ttl)
				}
				s.mu.Unlock()
				slog.Debug("broker session refreshed")
			case domain.IsTransient(err) && !isSessionGone(err):
				slog.Warn("session heartbeat failed", slog.Any("error", err))
			default:
				s.Invalidate()
			}
		}
	}
}

func isSessionGone(err error) bool {
	return errors.Is(err, domain.ErrSessionInvalid)
}
