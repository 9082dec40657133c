package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsAwareTransport retries robots.txt probes that time out and, when the
// probe never completes, answers with an allow-all file so a slow TLS
// handshake does not fail the page behind it. Other requests pass through.
type robotsAwareTransport struct {
	base   http.RoundTripper
	state  *robotsProbeState
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRobotsAwareTransport(base http.RoundTripper, logger *zap.Logger) *robotsAwareTransport {
	return &robotsAwareTransport{base: base, state: &robotsProbeState{}, logger: logger, sleep: sleepWithContext}
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		return t.base.RoundTrip(req)
	}
	return t.roundTripWithRetry(req)
}

func (t *robotsAwareTransport) roundTripWithRetry(req *http.Request) (*http.Response, error) {
	maxAttempts := len(robotsRetryBackoff) + 1
	for attempt := range maxAttempts {
		resp, err := t.base.RoundTrip(cloneRequest(req))
		if err == nil {
			return resp, nil
		}
		if !isTransientError(err) {
			return nil, fmt.Errorf("robots roundtrip: %w", err)
		}
		if attempt == maxAttempts-1 {
			t.fallback(req, err)
			return syntheticRobotsAllowAllResponse(req), nil
		}
		if err := t.sleep(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff: %w", err)
		}
	}
	return nil, errors.New("robots roundtrip exhausted retries")
}

func (t *robotsAwareTransport) fallback(req *http.Request, err error) {
	if t.state.markIndeterminate(req.URL.Host) && t.logger != nil {
		t.logger.Warn("robots.txt unreachable; treating host as allow-all",
			zap.String("host", req.URL.Host),
			zap.Int("attempts", len(robotsRetryBackoff)+1),
			zap.Error(err),
		)
	}
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

// robotsProbeState remembers hosts whose robots.txt could not be read. The
// transport is shared by every session.
type robotsProbeState struct {
	mu    sync.Mutex
	hosts map[string]struct{}
}

// markIndeterminate records host and reports whether it was new.
func (s *robotsProbeState) markIndeterminate(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hosts == nil {
		s.hosts = make(map[string]struct{})
	}
	if _, seen := s.hosts[host]; seen {
		return false
	}
	s.hosts[host] = struct{}{}
	return true
}

func (s *robotsProbeState) indeterminate(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hosts[host]
	return ok
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func syntheticRobotsAllowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
