package crawler

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// Normalize assembles the persisted record from a search entry and its detail document.
// A nil detail is stored as JSON null rather than dropping the record.
func Normalize(listing SearchListing, detail json.RawMessage) JobListing {
	return JobListing{
		ID:                    listing.ID,
		CreationDate:          listing.CreationDate,
		LastModificationDate:  listing.LastModificationDate,
		Title:                 listing.Title,
		Description:           listing.Description,
		NumberOfPosts:         listing.NumberOfPosts,
		LocationMap:           rawText(listing.LocationMap),
		EuresFlag:             rawText(listing.EuresFlag),
		JobCategoriesCodes:    rawText(listing.JobCategoriesCodes),
		PositionScheduleCodes: rawText(listing.PositionScheduleCodes),
		PositionOfferingCode:  listing.PositionOfferingCode,
		Employer:              rawText(listing.Employer),
		AvailableLanguages:    rawText(listing.AvailableLanguages),
		Score:                 listing.Score,
		Details:               rawText(detail),
	}
}

// rawText compacts a raw JSON value into its stored text form.
func rawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return string(jsonNull)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(jsonNull)
	}
	return buf.String()
}
