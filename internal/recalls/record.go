// Package recalls defines the normalized recall row and the natural key used
// for deduplication across ingest runs.
package recalls

import (
	"fmt"
	"strings"
	"time"
)

// Recall is one normalized enforcement record, shaped for the recalls table.
// Date fields are nil when the source value is absent or unparseable.
type Recall struct {
	RecallNumber            string     `json:"recall_number"`
	ProductType             string     `json:"product_type"`
	Classification          string     `json:"classification,omitempty"`
	Status                  string     `json:"status,omitempty"`
	RecallingFirm           string     `json:"recalling_firm,omitempty"`
	City                    string     `json:"city,omitempty"`
	State                   string     `json:"state,omitempty"`
	Country                 string     `json:"country,omitempty"`
	DistributionPattern     string     `json:"distribution_pattern,omitempty"`
	ProductDescription      string     `json:"product_description,omitempty"`
	ProductQuantity         string     `json:"product_quantity,omitempty"`
	ReasonForRecall         string     `json:"reason_for_recall,omitempty"`
	CodeInfo                string     `json:"code_info,omitempty"`
	MoreCodeInfo            string     `json:"more_code_info,omitempty"`
	VoluntaryMandated       string     `json:"voluntary_mandated,omitempty"`
	InitialFirmNotification string     `json:"initial_firm_notification,omitempty"`
	EventID                 string     `json:"event_id,omitempty"`
	RecallInitiationDate    *time.Time `json:"recall_initiation_date,omitempty"`
	ReportDate              *time.Time `json:"report_date,omitempty"`
	TerminationDate         *time.Time `json:"termination_date,omitempty"`
}

// Key returns the natural key used to detect already-ingested records.
// Recall numbers repeat across product categories, so the type is part of
// the key.
func (r Recall) Key() string {
	return fmt.Sprintf("%s|%s", strings.TrimSpace(r.RecallNumber), r.ProductType)
}

// Valid reports whether the record carries enough identity to be stored.
func (r Recall) Valid() bool {
	return strings.TrimSpace(r.RecallNumber) != "" && r.ProductType != ""
}
