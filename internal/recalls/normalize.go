package recalls

import (
	"strings"
	"time"

	"github.com/gracepitts/fda-recalls/internal/openfda"
)

// compactDate is the YYYYMMDD layout the API uses for every date field.
const compactDate = "20060102"

// Normalize flattens a raw API record into a Recall row. productType is the
// endpoint's type ("food", "drug", "device") and wins over the payload's own
// product_type field, which is absent or differently cased in older records.
func Normalize(rec openfda.EnforcementRecord, productType string) Recall {
	return Recall{
		RecallNumber:            strings.TrimSpace(rec.RecallNumber),
		ProductType:             productType,
		Classification:          strings.TrimSpace(rec.Classification),
		Status:                  strings.TrimSpace(rec.Status),
		RecallingFirm:           collapseSpace(rec.RecallingFirm),
		City:                    strings.TrimSpace(rec.City),
		State:                   strings.TrimSpace(rec.State),
		Country:                 strings.TrimSpace(rec.Country),
		DistributionPattern:     collapseSpace(rec.DistributionPattern),
		ProductDescription:      collapseSpace(rec.ProductDescription),
		ProductQuantity:         strings.TrimSpace(rec.ProductQuantity),
		ReasonForRecall:         collapseSpace(rec.ReasonForRecall),
		CodeInfo:                strings.TrimSpace(rec.CodeInfo),
		MoreCodeInfo:            strings.TrimSpace(rec.MoreCodeInfo),
		VoluntaryMandated:       strings.TrimSpace(rec.VoluntaryMandated),
		InitialFirmNotification: strings.TrimSpace(rec.InitialFirmNotification),
		EventID:                 strings.TrimSpace(rec.EventID),
		RecallInitiationDate:    parseDate(rec.RecallInitiationDate),
		ReportDate:              parseDate(rec.ReportDate),
		TerminationDate:         parseDate(rec.TerminationDate),
	}
}

// NormalizeAll flattens a page of records, dropping entries without a recall
// number.
func NormalizeAll(recs []openfda.EnforcementRecord, productType string) []Recall {
	out := make([]Recall, 0, len(recs))
	for _, rec := range recs {
		row := Normalize(rec, productType)
		if row.Valid() {
			out = append(out, row)
		}
	}
	return out
}

// parseDate converts a compact date to UTC midnight, nil on failure.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(compactDate, s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// collapseSpace trims and squeezes runs of whitespace; reason and firm fields
// frequently carry embedded newlines.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
