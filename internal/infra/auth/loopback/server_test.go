package loopback

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"
	"firelink/internal/loop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTicking keeps the accept poll loop moving for the duration of a test.
func startTicking(t *testing.T, lp *loop.Loop) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lp.Tick()
			}
		}
	}()
}

// redirect connects like a browser following the authorization redirect and
// returns the raw HTTP response.
func redirect(t *testing.T, port int, path string) string {
	t.Helper()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n", path)
	require.NoError(t, err)

	response, err := io.ReadAll(bufio.NewReader(conn))
	require.NoError(t, err)

	return string(response)
}

func TestServeCapturesCodeForKnownState(t *testing.T) {
	lp := loop.New()
	startTicking(t, lp)

	server, err := New(lp, testLogger(), map[string]entity.Provider{
		"state-google": entity.ProviderGoogle,
	})
	require.NoError(t, err)
	defer server.Close()

	type result struct {
		capture service.RedirectCapture
		err     error
	}
	done := make(chan result, 1)
	go func() {
		capture, err := server.Serve(context.Background())
		done <- result{capture, err}
	}()

	response := redirect(t, server.Port(), "/?code=abc123&state=state-google")
	assert.Contains(t, response, "200 OK")
	assert.Contains(t, response, "Login Complete! You can close this window.")

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, entity.ProviderGoogle, got.capture.Provider)
		assert.Equal(t, "abc123", got.capture.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return a capture")
	}
}

func TestServeDrainsConnectionPendingBeforePoll(t *testing.T) {
	lp := loop.New()
	startTicking(t, lp)

	server, err := New(lp, testLogger(), map[string]entity.Provider{
		"early-state": entity.ProviderGoogle,
	})
	require.NoError(t, err)
	defer server.Close()

	// The redirect lands in the accept queue before Serve ever polls.
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", server.Port()))
	require.NoError(t, err)
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "GET /?code=queued&state=early-state HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n")
	require.NoError(t, err)

	done := make(chan service.RedirectCapture, 1)
	go func() {
		capture, err := server.Serve(context.Background())
		if err == nil {
			done <- capture
		}
	}()

	select {
	case capture := <-done:
		assert.Equal(t, entity.ProviderGoogle, capture.Provider)
		assert.Equal(t, "queued", capture.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("pending connection was never accepted")
	}
}

func TestServeSkipsConnectionsWithoutCodeOrState(t *testing.T) {
	lp := loop.New()
	startTicking(t, lp)

	server, err := New(lp, testLogger(), map[string]entity.Provider{
		"good-state": entity.ProviderGithub,
	})
	require.NoError(t, err)
	defer server.Close()

	done := make(chan service.RedirectCapture, 1)
	go func() {
		capture, err := server.Serve(context.Background())
		if err == nil {
			done <- capture
		}
	}()

	// Browser noise and a forged state are both answered but never captured.
	noise := redirect(t, server.Port(), "/favicon.ico")
	assert.Contains(t, noise, "200 OK")

	forged := redirect(t, server.Port(), "/?code=evil&state=wrong")
	assert.Contains(t, forged, "200 OK")

	select {
	case capture := <-done:
		t.Fatalf("captured %+v from a rejected connection", capture)
	case <-time.After(100 * time.Millisecond):
	}

	redirect(t, server.Port(), "/?code=real&state=good-state")

	select {
	case capture := <-done:
		assert.Equal(t, entity.ProviderGithub, capture.Provider)
		assert.Equal(t, "real", capture.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("valid redirect was not captured")
	}
}

func TestServeReturnsWhenContextCancelled(t *testing.T) {
	lp := loop.New()
	startTicking(t, lp)

	server, err := New(lp, testLogger(), map[string]entity.Provider{})
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := server.Serve(ctx)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "cancelled"))
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not observe cancellation")
	}
}

func TestPortReturnsBoundPort(t *testing.T) {
	lp := loop.New()

	server, err := New(lp, testLogger(), nil)
	require.NoError(t, err)
	defer server.Close()

	assert.Greater(t, server.Port(), 0)
}
