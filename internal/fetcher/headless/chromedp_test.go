package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)
	_, err = NewChromedp(Config{WindowWidth: -1}, nil)
	require.Error(t, err)

	browser, err := NewChromedp(Config{MaxParallel: 2, WindowWidth: 1920, WindowHeight: 1080}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = browser.Close() })
	require.Equal(t, 2, cap(browser.limiter))
}

func TestNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	b := &Browser{}
	require.Equal(t, defaultNavTimeout, b.navTimeout())
	b.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, b.navTimeout())
}

func TestLimiterBlocksUntilRelease(t *testing.T) {
	t.Parallel()

	b := &Browser{limiter: make(chan struct{}, 1)}
	require.NoError(t, b.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.acquire(ctx), context.DeadlineExceeded)

	b.release()
	require.NoError(t, b.acquire(context.Background()))
}

func TestResponseMetaTracksDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	require.Zero(t, meta.status())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 503},
	})
	require.Equal(t, 503, meta.status())

	meta.reset()
	require.Zero(t, meta.status())
}

func TestSessionLocateWithoutPage(t *testing.T) {
	t.Parallel()

	s := &Session{}
	_, err := s.Locate(context.Background(), "a")
	require.Error(t, err)
}
