package openfda

// SearchResponse is the envelope returned by the enforcement endpoints.
type SearchResponse struct {
	Meta    Meta                `json:"meta"`
	Results []EnforcementRecord `json:"results"`
}

// Meta carries paging information for a search.
type Meta struct {
	Disclaimer  string       `json:"disclaimer"`
	LastUpdated string       `json:"last_updated"`
	Results     ResultWindow `json:"results"`
}

// ResultWindow reports the window the server actually returned.
type ResultWindow struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// EnforcementRecord is one raw recall-enforcement record as served by the
// API. Every field is a string on the wire, including the compact YYYYMMDD
// dates.
type EnforcementRecord struct {
	RecallNumber            string `json:"recall_number"`
	ProductType             string `json:"product_type"`
	Classification          string `json:"classification"`
	Status                  string `json:"status"`
	RecallingFirm           string `json:"recalling_firm"`
	City                    string `json:"city"`
	State                   string `json:"state"`
	Country                 string `json:"country"`
	DistributionPattern     string `json:"distribution_pattern"`
	ProductDescription      string `json:"product_description"`
	ProductQuantity         string `json:"product_quantity"`
	ReasonForRecall         string `json:"reason_for_recall"`
	CodeInfo                string `json:"code_info"`
	MoreCodeInfo            string `json:"more_code_info"`
	VoluntaryMandated       string `json:"voluntary_mandated"`
	InitialFirmNotification string `json:"initial_firm_notification"`
	EventID                 string `json:"event_id"`
	RecallInitiationDate    string `json:"recall_initiation_date"`
	ReportDate              string `json:"report_date"`
	TerminationDate         string `json:"termination_date"`
}

// apiError is the error envelope the API returns on non-2xx responses.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
