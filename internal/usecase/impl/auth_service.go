// Package impl provides the usecase implementations.
package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"
	"firelink/internal/loop"
	"firelink/internal/usecase"
)

// authService is the login state machine. Every method and every posted
// closure runs on the tick goroutine, so fields need no locking; background
// goroutines hand their results to the loop and never touch state directly.
type authService struct {
	cfg       *config.Config
	logger    *slog.Logger
	lp        *loop.Loop
	providers map[entity.Provider]service.OAuthProvider
	tokens    service.TokenService
	cache     service.SessionCache
	bind      service.RedirectServerFactory

	state   entity.AuthState
	session *entity.Session

	// attempt tracks the in-flight login attempt so LogOut can abort it.
	// Generation stamps stale-proof posted results: a closure carrying an
	// old generation belongs to an attempt that was already abandoned.
	attemptCancel context.CancelFunc
	generation    uint64

	authURLHandler func(map[entity.Provider]string)
	sessionHandler func(*entity.Session)
	stateHandler   func(entity.AuthState)
}

// NewAuthService wires the login state machine.
func NewAuthService(
	cfg *config.Config,
	logger *slog.Logger,
	lp *loop.Loop,
	providers []service.OAuthProvider,
	tokens service.TokenService,
	cache service.SessionCache,
	bind service.RedirectServerFactory,
) usecase.AuthUsecase {
	byName := make(map[entity.Provider]service.OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Provider()] = p
	}

	return &authService{
		cfg:       cfg,
		logger:    logger,
		lp:        lp,
		providers: byName,
		tokens:    tokens,
		cache:     cache,
		bind:      bind,
		state:     entity.AuthLoggedOut,
	}
}

func (s *authService) State() entity.AuthState {
	return s.state
}

func (s *authService) Session() *entity.Session {
	return s.session
}

func (s *authService) SetAuthURLHandler(fn func(urls map[entity.Provider]string)) {
	s.authURLHandler = fn
}

func (s *authService) SetSessionHandler(fn func(session *entity.Session)) {
	s.sessionHandler = fn
}

func (s *authService) SetStateHandler(fn func(state entity.AuthState)) {
	s.stateHandler = fn
}

// LogIn starts a login attempt. Calling it in any state other than logged
// out is a no-op, so callers may invoke it every tick without spawning
// duplicate attempts.
func (s *authService) LogIn() {
	if s.state != entity.AuthLoggedOut {
		return
	}

	refreshToken := s.persistedRefreshToken()
	if refreshToken == "" {
		s.beginLogin()

		return
	}

	s.setState(entity.AuthRefreshing)

	ctx, cancel := context.WithCancel(context.Background())
	s.replaceAttempt(cancel)
	gen := s.generation

	go func() {
		session, err := s.tokens.Refresh(ctx, refreshToken)
		s.lp.Post(func() {
			s.onRefreshed(gen, session, err)
		})
	}()
}

// persistedRefreshToken prefers the live session's token over the on-disk
// one. A cache read failure downgrades to a fresh interactive login.
func (s *authService) persistedRefreshToken() string {
	if s.session != nil && s.session.RefreshToken != "" {
		return s.session.RefreshToken
	}

	token, err := s.cache.Load()
	if err != nil {
		s.logger.Warn("failed to load persisted refresh token",
			slog.Any("error", err))

		return ""
	}

	return token
}

// beginLogin opens the interactive flow: bind a loopback listener, publish
// one authorization URL per configured provider, and wait for the redirect.
func (s *authService) beginLogin() {
	states := make(map[string]entity.Provider, len(s.providers))
	stateFor := make(map[entity.Provider]string, len(s.providers))
	for name := range s.providers {
		token := newStateToken()
		states[token] = name
		stateFor[name] = token
	}

	server, err := s.bind(states)
	if err != nil {
		s.logger.Error("failed to bind redirect listener", slog.Any("error", err))
		s.setState(entity.AuthLoggedOut)

		return
	}

	port := server.Port()

	urls := make(map[entity.Provider]string, len(s.providers))
	for name, provider := range s.providers {
		urls[name] = provider.AuthorizationURL(port, stateFor[name])
	}

	s.setState(entity.AuthLogIn)
	if s.authURLHandler != nil {
		s.authURLHandler(urls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.replaceAttempt(cancel)
	gen := s.generation

	go func() {
		capture, err := server.Serve(ctx)
		_ = server.Close()
		s.lp.Post(func() {
			s.onAuthCode(gen, capture, port, err)
		})
	}()
}

// onAuthCode consumes the captured redirect and exchanges the code in the
// background.
func (s *authService) onAuthCode(gen uint64, capture service.RedirectCapture, port int, err error) {
	if gen != s.generation || s.state != entity.AuthLogIn {
		return
	}

	if err != nil {
		s.logger.Error("redirect listener failed", slog.Any("error", err))
		s.setState(entity.AuthLoggedOut)

		return
	}

	provider, ok := s.providers[capture.Provider]
	if !ok {
		s.logger.Error("captured code for unconfigured provider",
			slog.String("provider", capture.Provider.String()))
		s.setState(entity.AuthLoggedOut)

		return
	}

	s.setState(entity.AuthGotAuthCode)

	ctx, cancel := context.WithCancel(context.Background())
	s.replaceAttempt(cancel)

	go func() {
		defer cancel()

		credential, err := provider.ExchangeCode(ctx, capture.Code, port)
		if err != nil {
			s.lp.Post(func() { s.onSignedIn(gen, nil, err) })

			return
		}

		session, err := s.tokens.SignInWithIdP(ctx, credential, port)
		s.lp.Post(func() { s.onSignedIn(gen, session, err) })
	}()
}

// onSignedIn finishes the interactive flow. A failed exchange reopens the
// login prompt rather than silently parking the machine.
func (s *authService) onSignedIn(gen uint64, session *entity.Session, err error) {
	if gen != s.generation || s.state != entity.AuthGotAuthCode {
		return
	}

	if err != nil {
		s.logger.Error("code exchange failed, restarting login",
			slog.Any("error", err))
		s.setState(entity.AuthLoggedOut)
		s.beginLogin()

		return
	}

	s.onLoggedIn(session)
}

// onRefreshed finishes the silent flow. A rejected refresh token falls back
// to the interactive prompt.
func (s *authService) onRefreshed(gen uint64, session *entity.Session, err error) {
	if gen != s.generation || s.state != entity.AuthRefreshing {
		return
	}

	if err != nil {
		s.logger.Warn("refresh token rejected, prompting for login",
			slog.Any("error", err))
		s.setState(entity.AuthLoggedOut)
		s.beginLogin()

		return
	}

	s.onLoggedIn(session)
}

func (s *authService) onLoggedIn(session *entity.Session) {
	s.session = session
	s.attemptCancel = nil
	s.setState(entity.AuthLoggedIn)

	if s.cfg.Login.Remember {
		if err := s.cache.Save(session.RefreshToken); err != nil {
			// Persistence failure costs a re-login next run, nothing more.
			s.logger.Warn("failed to persist refresh token", slog.Any("error", err))
		}
	}

	s.logger.Info("logged in", slog.String("uid", session.UserID))

	if s.sessionHandler != nil {
		s.sessionHandler(session)
	}
}

// LogOut aborts any in-flight attempt, drops the session and the persisted
// token, and returns to logged out. A no-op when already logged out.
func (s *authService) LogOut() {
	if s.state == entity.AuthLoggedOut {
		return
	}

	s.setState(entity.AuthLogOut)

	// Invalidate every pending posted result from the old attempt.
	s.generation++
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
	}

	s.session = nil

	if err := s.cache.Delete(); err != nil {
		s.logger.Warn("failed to delete persisted refresh token",
			slog.Any("error", err))
	}

	if s.sessionHandler != nil {
		s.sessionHandler(nil)
	}

	s.setState(entity.AuthLoggedOut)
	s.logger.Info("logged out")
}

// DeleteAccount removes the signed-in account remotely, then logs out
// locally regardless of the remote outcome.
func (s *authService) DeleteAccount() {
	if !s.session.LoggedIn() {
		return
	}

	idToken := s.session.IDToken
	gen := s.generation

	go func() {
		if err := s.tokens.DeleteAccount(context.Background(), idToken); err != nil {
			s.lp.Post(func() {
				s.logger.Error("account deletion failed", slog.Any("error", err))
			})
		}

		s.lp.Post(func() {
			if gen != s.generation {
				return
			}
			s.LogOut()
		})
	}()
}

// replaceAttempt releases the previous attempt's context before installing
// the next one, so abandoned listener and exchange contexts never leak.
func (s *authService) replaceAttempt(cancel context.CancelFunc) {
	if s.attemptCancel != nil {
		s.attemptCancel()
	}
	s.attemptCancel = cancel
}

func (s *authService) setState(state entity.AuthState) {
	s.state = state
	if s.stateHandler != nil {
		s.stateHandler(state)
	}
}

// newStateToken generates the random state parameter carried by one
// provider's authorization URL and echoed back in the redirect.
func newStateToken() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)

	return hex.EncodeToString(bytes)
}
