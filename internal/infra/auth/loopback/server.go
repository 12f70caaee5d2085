// Package loopback implements the ephemeral local redirect listener for the
// OAuth authorization-code flow. One listener serves exactly one login
// attempt: it captures a single authorization code from the browser redirect
// and terminates.
package loopback

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"
	"firelink/internal/loop"

	"github.com/pkg/errors"
)

const (
	// pollTicks is how many simulation ticks an idle accept loop waits
	// between polls.
	pollTicks = 60

	// acceptWindow is how long each poll lets Accept drain pending
	// connections. An already-expired deadline would fail the poll without
	// ever draining the queue.
	acceptWindow = 10 * time.Millisecond

	// confirmationBody is shown in the user's browser after the redirect.
	confirmationBody = "Login Complete! You can close this window."

	readTimeout = 5 * time.Second
)

// Server is a single-shot loopback redirect listener bound to an OS-assigned
// port on 127.0.0.1.
type Server struct {
	listener *net.TCPListener
	lp       *loop.Loop
	logger   *slog.Logger

	// states routes the echoed state parameter back to the provider whose
	// authorization URL carried it. Redirects with an unknown state are
	// ignored.
	states map[string]entity.Provider
}

// NewFactory returns a RedirectServerFactory that binds servers polling on lp.
func NewFactory(lp *loop.Loop, logger *slog.Logger) service.RedirectServerFactory {
	return func(states map[string]entity.Provider) (service.RedirectServer, error) {
		return New(lp, logger, states)
	}
}

// New binds a fresh listener on 127.0.0.1:0. A bind failure is fatal to the
// login attempt and surfaced to the caller.
func New(lp *loop.Loop, logger *slog.Logger, states map[string]entity.Provider) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "bind loopback redirect listener")
	}

	return &Server{
		listener: listener.(*net.TCPListener),
		lp:       lp,
		logger:   logger,
		states:   states,
	}, nil
}

// Port returns the OS-assigned listen port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve polls the listener until a redirect carrying a known state and a code
// arrives. Polling is non-blocking with a backoff measured in ticks, so an
// idle listener never pins a worker. Connections that carry no code (browser
// prefetches, favicon requests) or an unknown state are answered and skipped.
func (s *Server) Serve(ctx context.Context) (service.RedirectCapture, error) {
	for {
		// A short deadline makes Accept a poll rather than a block.
		if err := s.listener.SetDeadline(time.Now().Add(acceptWindow)); err != nil {
			s.logger.Warn("failed to arm accept deadline, accept may block",
				slog.Any("error", err))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if err := s.lp.AwaitTicks(ctx, pollTicks); err != nil {
					return service.RedirectCapture{}, errors.Wrap(err, "redirect listener cancelled")
				}

				continue
			}

			return service.RedirectCapture{}, errors.Wrap(err, "accept redirect connection")
		}

		capture, ok := s.handle(conn)
		if ok {
			return capture, nil
		}
	}
}

// handle reads one redirect request and extracts the code, responding with
// the fixed confirmation page either way.
func (s *Server) handle(conn net.Conn) (service.RedirectCapture, bool) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Only the first request line matters: "METHOD PATH VERSION".
	requestLine, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		s.logger.Debug("failed to read redirect request line", slog.Any("error", err))

		return service.RedirectCapture{}, false
	}

	s.respond(conn)

	parts := strings.Fields(requestLine)
	if len(parts) < 2 {
		return service.RedirectCapture{}, false
	}

	// Reconstruct a parseable URL from the bare path.
	redirectURL, err := url.Parse("http://localhost" + parts[1])
	if err != nil {
		s.logger.Debug("malformed redirect path", slog.String("path", parts[1]))

		return service.RedirectCapture{}, false
	}

	query := redirectURL.Query()

	code := query.Get("code")
	if code == "" {
		return service.RedirectCapture{}, false
	}

	provider, ok := s.states[query.Get("state")]
	if !ok {
		s.logger.Warn("redirect with unknown state parameter ignored")

		return service.RedirectCapture{}, false
	}

	return service.RedirectCapture{Provider: provider, Code: code}, true
}

func (s *Server) respond(conn net.Conn) {
	response := fmt.Sprintf("HTTP/1.1 200 OK\r\ncontent-length: %d\r\n\r\n%s",
		len(confirmationBody), confirmationBody)

	if _, err := conn.Write([]byte(response)); err != nil {
		s.logger.Debug("failed to write confirmation page", slog.Any("error", err))
	}
}

// Close releases the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}
