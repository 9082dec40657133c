package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the public registry front end.
const DefaultBaseURL = "https://find-and-update.company-information.service.gov.uk"

// BlockOrdinal is replaced in appointment field selectors with the 1-based
// position of the block being read.
const BlockOrdinal = "{n}"

// Selectors holds every DOM selector used against the registry markup.
type Selectors struct {
	SearchPath       string `mapstructure:"search_path"`
	NoResults        string `mapstructure:"no_results"`
	OfficerLink      string `mapstructure:"officer_link"`
	NextPage         string `mapstructure:"next_page"`
	OfficerName      string `mapstructure:"officer_name"`
	BirthDate        string `mapstructure:"birth_date"`
	Nationality      string `mapstructure:"nationality"`
	AppointmentBlock string `mapstructure:"appointment_block"`
	CompanyLink      string `mapstructure:"company_link"`
	CompanyStatus    string `mapstructure:"company_status"`
	Address          string `mapstructure:"address"`
	Role             string `mapstructure:"role"`
	AppointedOn      string `mapstructure:"appointed_on"`
	GoverningLaw     string `mapstructure:"governing_law"`
	LegalForm        string `mapstructure:"legal_form"`
}

// DefaultSelectors matches the registry's current officer search and
// appointment pages.
func DefaultSelectors() Selectors {
	return Selectors{
		SearchPath:       "/search/officers",
		NoResults:        ".search-no-results",
		OfficerLink:      `a.govuk-link[href*="/officers/"]`,
		NextPage:         "a.page-next",
		OfficerName:      ".heading-xlarge",
		BirthDate:        "#officer-date-of-birth-value",
		Nationality:      "#nationality-value-1",
		AppointmentBlock: `div[class^="appointment-"]`,
		CompanyLink:      `a[href*="/company/"]`,
		CompanyStatus:    "#company-status-value-{n}",
		Address:          "#correspondence-address-value-{n}",
		Role:             "#appointment-type-value{n}",
		AppointedOn:      "#appointed-value{n}",
		GoverningLaw:     "#legal-authority-value-{n}",
		LegalForm:        "#legal-form-value-{n}",
	}
}

// WithDefaults fills blank selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	def := DefaultSelectors()
	fill := func(dst *string, fallback string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = fallback
		}
	}
	fill(&s.SearchPath, def.SearchPath)
	fill(&s.NoResults, def.NoResults)
	fill(&s.OfficerLink, def.OfficerLink)
	fill(&s.NextPage, def.NextPage)
	fill(&s.OfficerName, def.OfficerName)
	fill(&s.BirthDate, def.BirthDate)
	fill(&s.Nationality, def.Nationality)
	fill(&s.AppointmentBlock, def.AppointmentBlock)
	fill(&s.CompanyLink, def.CompanyLink)
	fill(&s.CompanyStatus, def.CompanyStatus)
	fill(&s.Address, def.Address)
	fill(&s.Role, def.Role)
	fill(&s.AppointedOn, def.AppointedOn)
	fill(&s.GoverningLaw, def.GoverningLaw)
	fill(&s.LegalForm, def.LegalForm)
	return s
}

// LinkScript returns the page script that lists officer links as
// [{href, text}] in document order.
func (s Selectors) LinkScript() string {
	quoted, _ := json.Marshal(s.OfficerLink)
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(a => ({
	href: a.getAttribute("href") || "",
	text: (a.textContent || "").trim()
}))`, quoted)
}

// slot expands the block ordinal placeholder in a field selector.
func slot(selector string, ordinal int) string {
	return strings.ReplaceAll(selector, BlockOrdinal, strconv.Itoa(ordinal))
}

// SearchURL builds the listing URL for one unit and page.
func SearchURL(base, path string, unit SearchUnit, page int) string {
	if path == "" {
		path = DefaultSelectors().SearchPath
	}
	return fmt.Sprintf("%s%s?q=%s&page=%d",
		strings.TrimRight(base, "/"), path, url.QueryEscape(string(unit)), page)
}

// resolveLink turns an on-page href into an absolute URL.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String(), true
}
