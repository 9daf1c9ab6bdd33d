package api

import "time"

// =============================================================================
// Response Types
// =============================================================================

// CommandAcceptedResponse is returned when a command was stored for processing.
type CommandAcceptedResponse struct {
	CommandID  string    `json:"command_id"`
	DocumentID string    `json:"document_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// CommandStatusResponse describes an inbox command.
type CommandStatusResponse struct {
	CommandID   string     `json:"command_id"`
	Kind        string     `json:"kind"`
	DocumentID  string     `json:"document_id"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ChargeResponse is the timeline view of a charge.
type ChargeResponse struct {
	ID                   string           `json:"id"`
	ChargeID             string           `json:"charge_id"`
	OwnerID              string           `json:"owner_id"`
	Type                 string           `json:"charge_type"`
	Resolution           string           `json:"resolution"`
	TaxIndicator         bool             `json:"tax_indicator"`
	TransparentInvoicing bool             `json:"transparent_invoicing"`
	Version              int              `json:"version"`
	Periods              []PeriodResponse `json:"periods"`
	Points               []PointResponse  `json:"points"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// PeriodResponse is one period of a timeline. EndDateTime is omitted for an
// open-ended period.
type PeriodResponse struct {
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	VatClassification    string     `json:"vat_classification"`
	TransparentInvoicing bool       `json:"transparent_invoicing"`
	StartDateTime        time.Time  `json:"start_date_time"`
	EndDateTime          *time.Time `json:"end_date_time,omitempty"`
	IsStop               bool       `json:"is_stop"`
	ReceivedAt           time.Time  `json:"received_at"`
}

// PointResponse is one price point. Price keeps full decimal precision.
type PointResponse struct {
	Position int       `json:"position"`
	Price    string    `json:"price"`
	Time     time.Time `json:"time"`
}

// ChargeLinkResponse is one link of a charge.
type ChargeLinkResponse struct {
	ID              string     `json:"id"`
	MeteringPointID string     `json:"metering_point_id"`
	Factor          int        `json:"factor"`
	StartDateTime   time.Time  `json:"start_date_time"`
	EndDateTime     *time.Time `json:"end_date_time,omitempty"`
	OperationID     string     `json:"operation_id"`
}

// ChargeLinksResponse lists the links of a charge.
type ChargeLinksResponse struct {
	Links  []ChargeLinkResponse `json:"links"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// HealthResponse is the response for health checks.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness checks.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
