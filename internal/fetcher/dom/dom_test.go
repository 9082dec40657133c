package dom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<h1 class="heading-xlarge">YILMAZ, Ahmet</h1>
<div class="appointment-1">
  <h2><a class="govuk-link" href="/company/01234567">ACME HOLDINGS (01234567)</a></h2>
  <dd id="company-status-value-1">Active</dd>
</div>
<div class="appointment-2">
  <h2><a class="govuk-link" href="/company/7654">SECOND LTD (7654)</a></h2>
  <dd id="appointment-type-value2">Secretary</dd>
</div>
</body></html>`

func TestLocateWithinBlocks(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(page))
	require.NoError(t, err)

	heading, err := doc.Locate(".heading-xlarge")
	require.NoError(t, err)
	require.Len(t, heading, 1)
	require.Equal(t, "YILMAZ, Ahmet", heading[0].Text())

	blocks, err := doc.Locate(`div[class^="appointment-"]`)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	links := blocks[1].Locate(`a[href*="/company/"]`)
	require.Len(t, links, 1)
	href, ok := links[0].Attr("href")
	require.True(t, ok)
	require.Equal(t, "/company/7654", href)
	require.Len(t, blocks[1].Locate("#appointment-type-value2"), 1)
	require.Empty(t, blocks[0].Locate("#appointment-type-value1"))

	_, missing := heading[0].Attr("href")
	require.False(t, missing)
}

func TestLocateRejectsInvalidSelector(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(page))
	require.NoError(t, err)
	_, err = doc.Locate("div[")
	require.Error(t, err)

	blocks, err := doc.Locate("div")
	require.NoError(t, err)
	require.Nil(t, blocks[0].Locate("div["))
}
