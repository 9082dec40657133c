package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

const listingPage1 = `<html><body>
<ul>
  <li><a class="govuk-link" href="/officers/aaa/appointments">DENIZ, Ayse</a></li>
  <li><a class="govuk-link" href="/officers/bbb/appointments">DENIZ, Mehmet</a></li>
</ul>
<a class="page-next" href="/search/officers?q=Deniz&page=2">Next</a>
</body></html>`

const listingPage2 = `<html><body><div class="search-no-results">No results found</div></body></html>`

const officerAAA = `<html><body>
<h1 class="heading-xlarge">DENIZ, Ayse</h1>
<dd id="officer-date-of-birth-value">March 1980</dd>
<div class="appointment-1">
  <h2><a class="govuk-link" href="/company/01234567">Acme Holdings (01234567)</a></h2>
  <dd id="appointment-type-value1">Director</dd>
  <dd id="correspondence-address-value-1">1 High Street,
     London</dd>
  <dd id="appointed-value1">2 March 2021</dd>
</div>
</body></html>`

const officerBBB = `<html><body>
<h1 class="heading-xlarge">DENIZ, Mehmet</h1>
<div class="appointment-1"><h2>Resigned company without link</h2></div>
</body></html>`

func newRegistry(t *testing.T, hits *atomic.Int64, userAgent *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/officers", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		userAgent.Store(r.UserAgent())
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, listingPage1)
		default:
			fmt.Fprint(w, listingPage2)
		}
	})
	mux.HandleFunc("/officers/aaa/appointments", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, officerAAA)
	})
	mux.HandleFunc("/officers/bbb/appointments", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, officerBBB)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionCrawlsUnitEndToEnd(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	var ua atomic.Value
	srv := newRegistry(t, &hits, &ua)

	browser := New(Config{UserAgent: "officer-test/1.0", Timeout: 5 * time.Second}, nil)
	t.Cleanup(func() { _ = browser.Close() })
	session, err := browser.NewSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	listing, err := crawler.NewListingCrawler(crawler.ListingConfig{BaseURL: srv.URL}, nil, nil)
	require.NoError(t, err)
	runner := crawler.NewUnitRunner(listing, crawler.NewExtractor(crawler.Selectors{}, crawler.Policy{}, nil, nil), nil, nil)

	res := runner.Run(context.Background(), session, "Deniz", nil)
	require.NoError(t, res.Err)
	require.Equal(t, crawler.ListingHasLinks, res.State)
	require.Equal(t, 2, res.Pages)
	require.Equal(t, 2, res.Links)
	require.Equal(t, 1, res.Dropped)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	require.Equal(t, "DENIZ, Ayse", rec.Name)
	require.Equal(t, "March 1980", rec.DateOfBirth)
	require.Equal(t, srv.URL+"/officers/aaa/appointments", rec.URL)
	require.Equal(t, []crawler.AppointmentRecord{{
		CompanyName:           "Acme Holdings (01234567)",
		CompanyNumber:         "01234567",
		Role:                  "Director",
		CorrespondenceAddress: "1 High Street, London",
		AppointedOn:           "2 March 2021",
	}}, rec.Appointments)

	require.Equal(t, int64(4), hits.Load())
	require.Equal(t, "officer-test/1.0", ua.Load())
}

func TestSessionReportsHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	session, err := New(Config{}, nil).NewSession(context.Background())
	require.NoError(t, err)
	require.Error(t, session.Navigate(context.Background(), srv.URL+"/search/officers?q=Ali&page=1"))

	_, err = session.Locate(context.Background(), "a")
	require.ErrorIs(t, err, errNoPage)
}

func TestSessionEvaluateUnsupported(t *testing.T) {
	t.Parallel()

	session, err := New(Config{}, nil).NewSession(context.Background())
	require.NoError(t, err)
	var out []crawler.Link
	require.ErrorIs(t, session.Evaluate(context.Background(), "1+1", &out), crawler.ErrEvaluateUnsupported)
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	b := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second}, nil)
	var body []byte
	var fetchErr error
	collector := b.buildCollector(&body, &fetchErr)
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.IsType(t, &robotsAwareTransport{}, b.roundTripper)

	b = New(Config{}, nil)
	collector = b.buildCollector(&body, &fetchErr)
	require.True(t, collector.IgnoreRobotsTxt)
	require.Same(t, b.transport, b.roundTripper)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	b := New(Config{}, nil)
	var body []byte
	var fetchErr error
	hooks := &stubHooks{}
	b.configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{Body: []byte("<html></html>")})
	require.Equal(t, "<html></html>", string(body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, fmt.Errorf("bad gateway"))
	require.ErrorContains(t, fetchErr, "status 502")
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
