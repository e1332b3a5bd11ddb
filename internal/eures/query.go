// Package eures talks to the EURES job vacancy search engine.
package eures

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

const (
	searchPath = "/eures/eures-apps/searchengine/page/jv-search/search"
	detailPath = "/eures/eures-apps/searchengine/page/jv/id/"
	portalPath = "/eures/portal/jv-se/search"
	iscoPrefix = "http://data.europa.eu/esco/isco/"

	// DefaultBaseURL is the public EURES host.
	DefaultBaseURL = "https://europa.eu"
)

// Language is a required-language filter.
type Language struct {
	ISOCode string `mapstructure:"iso_code" json:"isoCode"`
	Level   string `mapstructure:"level" json:"level"`
}

// Query is the immutable set of search filters sent with every search request.
type Query struct {
	BaseURL           string
	Keyword           string
	SortSearch        string
	PublicationPeriod string
	OccupationCodes   []string
	ScheduleCodes     []string
	SectorCodes       []string
	OfferingCodes     []string
	LocationCodes     []string
	Languages         []Language
	Lang              string
}

// DefaultQuery returns the filters the crawler ships with.
func DefaultQuery() Query {
	return Query{
		BaseURL:           DefaultBaseURL,
		Keyword:           "head of engineering",
		SortSearch:        "BEST_MATCH",
		PublicationPeriod: "LAST_WEEK",
		OccupationCodes:   []string{"C11", "C12", "C133", "C242", "C243", "C25", "C35"},
		ScheduleCodes:     []string{"fulltime"},
		SectorCodes:       []string{"NS", "j", "k"},
		OfferingCodes:     []string{"NS", "directhire"},
		LocationCodes:     []string{"be", "ch", "dk", "fi", "mt", "nl", "no", "se"},
		Languages:         []Language{{ISOCode: "en", Level: "C2"}},
		Lang:              "en",
	}
}

type keyword struct {
	Keyword            string `json:"keyword"`
	SpecificSearchCode string `json:"specificSearchCode"`
}

type searchRequest struct {
	ResultsPerPage        int        `json:"resultsPerPage"`
	Page                  int        `json:"page"`
	SortSearch            string     `json:"sortSearch"`
	Keywords              []keyword  `json:"keywords"`
	PublicationPeriod     string     `json:"publicationPeriod"`
	OccupationURIs        []string   `json:"occupationUris"`
	PositionScheduleCodes []string   `json:"positionScheduleCodes"`
	SectorCodes           []string   `json:"sectorCodes"`
	PositionOfferingCodes []string   `json:"positionOfferingCodes"`
	LocationCodes         []string   `json:"locationCodes"`
	RequiredLanguages     []Language `json:"requiredLanguages"`
}

func (q Query) searchBody(page int) searchRequest {
	uris := make([]string, 0, len(q.OccupationCodes))
	for _, code := range q.OccupationCodes {
		uris = append(uris, iscoPrefix+code)
	}
	var keywords []keyword
	if strings.TrimSpace(q.Keyword) != "" {
		keywords = []keyword{{Keyword: q.Keyword, SpecificSearchCode: "EVERYWHERE"}}
	}
	return searchRequest{
		ResultsPerPage:        crawler.PageSize,
		Page:                  page,
		SortSearch:            q.SortSearch,
		Keywords:              nonNil(keywords),
		PublicationPeriod:     q.PublicationPeriod,
		OccupationURIs:        uris,
		PositionScheduleCodes: nonNil(q.ScheduleCodes),
		SectorCodes:           nonNil(q.SectorCodes),
		PositionOfferingCodes: nonNil(q.OfferingCodes),
		LocationCodes:         nonNil(q.LocationCodes),
		RequiredLanguages:     nonNil(q.Languages),
	}
}

func (q Query) base() string {
	base := strings.TrimRight(q.BaseURL, "/")
	if base == "" {
		return DefaultBaseURL
	}
	return base
}

// SearchURL is the search endpoint.
func (q Query) SearchURL() string {
	return q.base() + searchPath
}

// DetailURL is the detail endpoint for id.
func (q Query) DetailURL(id string) string {
	return fmt.Sprintf("%s%s%s?lang=%s", q.base(), detailPath, url.PathEscape(id), url.QueryEscape(q.Lang))
}

// DetailReferer is the portal page a browser would show for id.
func (q Query) DetailReferer(id string) string {
	return fmt.Sprintf("%s/eures/portal/jv-se/jv-details/%s?lang=%s", q.base(), url.PathEscape(id), url.QueryEscape(q.Lang))
}

// PortalURL is the human-facing search page matching this query. It is used as the
// search Referer and as the page a browser visits to mint a session.
func (q Query) PortalURL() string {
	params := []string{
		"page=1",
		"resultsPerPage=10",
		"orderBy=" + q.SortSearch,
		"locationCodes=" + strings.Join(q.LocationCodes, ","),
		"keywordsEverywhere=" + url.PathEscape(q.Keyword),
		"positionScheduleCodes=" + strings.Join(q.ScheduleCodes, ","),
		"sector=" + strings.Join(q.SectorCodes, ","),
		"positionOfferingCodes=" + strings.Join(q.OfferingCodes, ","),
		"publicationPeriod=" + q.PublicationPeriod,
		"escoIsco=" + strings.Join(q.OccupationCodes, ","),
	}
	langs := make([]string, 0, len(q.Languages))
	for _, l := range q.Languages {
		langs = append(langs, fmt.Sprintf("%s(%s)", l.ISOCode, l.Level))
	}
	params = append(params, "requiredLanguages="+strings.Join(langs, ","), "lang="+q.Lang)
	return q.base() + portalPath + "?" + strings.Join(params, "&")
}

// Origin is the value of the Origin header on search requests.
func (q Query) Origin() string {
	u, err := url.Parse(q.base())
	if err != nil || u.Host == "" {
		return q.base()
	}
	return u.Scheme + "://" + u.Host
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
