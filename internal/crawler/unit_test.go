package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func newTestRunner(t *testing.T, pacer Pacer) *UnitRunner {
	t.Helper()
	clock := &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
	return NewUnitRunner(newTestListing(t, 20, pacer), NewExtractor(Selectors{}, Policy{}, pacer, nil), clock, nil)
}

func seedOfficer(session *fakeSession, href, name, company string) {
	sel := DefaultSelectors()
	elements := map[string][]Element{sel.OfficerName: {fakeElement{text: name}}}
	if company != "" {
		elements[sel.AppointmentBlock] = []Element{appointmentBlock(1, company, nil)}
	}
	session.pages[testBase+href] = fakePage{elements: elements}
}

func TestUnitRunnerCollectsRecordsAndAbsorbsOfficerFailures(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	session := newFakeSession()
	session.pages[listingURL("Deniz", 1)] = fakePage{elements: map[string][]Element{
		sel.OfficerLink: officerLinks("/officers/1/appointments", "/officers/2/appointments", "/officers/3/appointments", "/officers/4/appointments"),
	}}
	seedOfficer(session, "/officers/1/appointments", "ONE, Deniz", "One Ltd (1)")
	seedOfficer(session, "/officers/2/appointments", "TWO, Deniz", "")
	session.fail[testBase+"/officers/3/appointments"] = errors.New("timeout")
	seedOfficer(session, "/officers/4/appointments", "FOUR, Deniz", "Four Ltd (4)")
	pacer := &stubPacer{}
	observer := &recordingObserver{}

	res := newTestRunner(t, pacer).Run(context.Background(), session, "Deniz", observer)
	require.NoError(t, res.Err)
	require.False(t, res.Failed())
	require.Equal(t, ListingHasLinks, res.State)
	require.Equal(t, 4, res.Links)
	require.Equal(t, 2, res.Dropped)
	require.Len(t, res.Records, 2)
	require.Equal(t, "ONE, Deniz", res.Records[0].Name)
	require.Equal(t, "FOUR, Deniz", res.Records[1].Name)
	require.Equal(t, 4, observer.officers)
	require.Equal(t, 1, observer.failures)
	require.Equal(t, 5, pacer.waits, "one listing load and four detail loads")
	require.Positive(t, res.Duration)
}

func TestUnitRunnerNoResultsProducesEmptySet(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	session.pages[listingURL("Zzyzx", 1)] = fakePage{elements: map[string][]Element{
		DefaultSelectors().NoResults: {fakeElement{}},
	}}

	res := newTestRunner(t, nil).Run(context.Background(), session, "Zzyzx", nil)
	require.NoError(t, res.Err)
	require.Equal(t, ListingNoResults, res.State)
	require.NotNil(t, res.Records)
	require.Empty(t, res.Records)
}

func TestUnitRunnerListingFailureFailsUnit(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	session.fail[listingURL("Onur", 1)] = errors.New("connection reset")

	res := newTestRunner(t, nil).Run(context.Background(), session, "Onur", nil)
	require.True(t, res.Failed())
	require.ErrorIs(t, res.Err, ErrNavigation)
	require.Equal(t, ListingError, res.State)
	require.Empty(t, res.Records)
}

func TestUnitRunnerCancellationAbandonsUnit(t *testing.T) {
	t.Parallel()

	sel := DefaultSelectors()
	session := newFakeSession()
	session.pages[listingURL("Kaan", 1)] = fakePage{elements: map[string][]Element{
		sel.OfficerLink: officerLinks("/officers/1/appointments", "/officers/2/appointments"),
	}}
	seedOfficer(session, "/officers/1/appointments", "ONE, Kaan", "One Ltd")
	seedOfficer(session, "/officers/2/appointments", "TWO, Kaan", "Two Ltd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.onNavigate = func(url string) {
		if url == testBase+"/officers/1/appointments" {
			cancel()
		}
	}

	res := newTestRunner(t, nil).Run(ctx, session, "Kaan", nil)
	require.True(t, res.Failed())
	require.ErrorIs(t, res.Err, context.Canceled)
	var unitErr *UnitError
	require.ErrorAs(t, res.Err, &unitErr)
}
