package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Period is a reporting window with inclusive bounds.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Adjustment is one manual delta on a record's base amount.
type Adjustment struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

// Breakdown is the server-computed royalty calculation.
type Breakdown struct {
	Base        float64 `json:"base"`
	Penalties   float64 `json:"penalties"`
	Interest    float64 `json:"interest"`
	Adjustments float64 `json:"adjustments"`
	Total       float64 `json:"total"`
}

// PartialPayment is one settlement instalment on a record.
type PartialPayment struct {
	Amount     float64   `json:"amount"`
	Date       time.Time `json:"date"`
	RecordedBy string    `json:"recorded_by"`
}

// StatusEntry is one status history entry.
type StatusEntry struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	ChangedBy string    `json:"changed_by"`
	Notes     string    `json:"notes,omitempty"`
}

// Record is one royalty record as returned by the API.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`

	Entity           string    `json:"entity"`
	Mineral          string    `json:"mineral"`
	ContractID       string    `json:"contract_id,omitempty"`
	ProductionVolume float64   `json:"production_volume"`
	UnitPrice        float64   `json:"unit_price,omitempty"`
	CommodityPrice   float64   `json:"commodity_price,omitempty"`
	MarketValue      float64   `json:"market_value,omitempty"`
	GrossValue       float64   `json:"gross_value,omitempty"`
	ReportingPeriod  Period    `json:"reporting_period"`
	Currency         string    `json:"currency"`
	PaymentDate      time.Time `json:"payment_date"`
	Status           string    `json:"status"`
	Breakdown        Breakdown `json:"calculation_breakdown"`

	Adjustments     []Adjustment     `json:"adjustments,omitempty"`
	PartialPayments []PartialPayment `json:"partial_payments,omitempty"`
	StatusHistory   []StatusEntry    `json:"status_history,omitempty"`

	CreatedBy string `json:"created_by"`
	Notes     string `json:"notes,omitempty"`
}

// ValidationIssue is one validation finding keyed by field.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult carries the server's validation findings.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// SubmitRecordRequest is the payload for submitting a record.
type SubmitRecordRequest struct {
	Entity           string       `json:"entity"`
	Mineral          string       `json:"mineral"`
	ContractID       string       `json:"contract_id,omitempty"`
	ProductionVolume float64      `json:"production_volume"`
	UnitPrice        float64      `json:"unit_price,omitempty"`
	CommodityPrice   float64      `json:"commodity_price,omitempty"`
	MarketValue      float64      `json:"market_value,omitempty"`
	GrossValue       float64      `json:"gross_value,omitempty"`
	ReportingPeriod  Period       `json:"reporting_period"`
	Currency         string       `json:"currency"`
	PaymentDate      time.Time    `json:"payment_date"`
	Status           string       `json:"status,omitempty"`
	Adjustments      []Adjustment `json:"adjustments,omitempty"`
	DeclaredAmount   float64      `json:"declared_amount,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	ConfirmWarnings  bool         `json:"confirm_warnings,omitempty"`
}

// SubmitRecordResult pairs the persisted record with its validation
// outcome.
type SubmitRecordResult struct {
	Record     *Record          `json:"record"`
	Validation ValidationResult `json:"validation"`
}

// RecordList is a paginated record listing.
type RecordList struct {
	Records    []*Record `json:"records"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// ListRecordsOptions filters and paginates record listings.
type ListRecordsOptions struct {
	Entity     string
	Mineral    string
	Status     string
	ContractID string
	PeriodFrom *time.Time
	PeriodTo   *time.Time
	DueBefore  *time.Time
	DueAfter   *time.Time
	Sort       string
	Page       int
	PageSize   int
}

func (o ListRecordsOptions) query() string {
	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	setDate := func(key string, t *time.Time) {
		if t != nil {
			q.Set(key, t.Format("2006-01-02"))
		}
	}
	set("entity", o.Entity)
	set("mineral", o.Mineral)
	set("status", o.Status)
	set("contract_id", o.ContractID)
	set("sort", o.Sort)
	setDate("period_from", o.PeriodFrom)
	setDate("period_to", o.PeriodTo)
	setDate("due_before", o.DueBefore)
	setDate("due_after", o.DueAfter)
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// RowIssue ties an import finding to its CSV row.
type RowIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ImportReport summarizes a bulk CSV import.
type ImportReport struct {
	TotalRows  int        `json:"total_rows"`
	Successful int        `json:"successful"`
	RecordIDs  []string   `json:"record_ids,omitempty"`
	Errors     []RowIssue `json:"errors,omitempty"`
	Warnings   []RowIssue `json:"warnings,omitempty"`
}

// ArchiveResult points at an export stored in object storage.
type ArchiveResult struct {
	Location string `json:"location"`
	Rows     int    `json:"rows"`
}

// RecordsClient covers the /api/v1/records endpoints.
type RecordsClient struct {
	client *Client
}

// Submit creates one royalty record.
func (rc *RecordsClient) Submit(ctx context.Context, req SubmitRecordRequest) (*SubmitRecordResult, error) {
	var result SubmitRecordResult
	if err := rc.client.post(ctx, "/api/v1/records", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get fetches one record by ID.
func (rc *RecordsClient) Get(ctx context.Context, id string) (*Record, error) {
	var record Record
	if err := rc.client.get(ctx, "/api/v1/records/"+url.PathEscape(id), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns records matching the options.
func (rc *RecordsClient) List(ctx context.Context, opts ListRecordsOptions) (*RecordList, error) {
	var list RecordList
	if err := rc.client.get(ctx, "/api/v1/records"+opts.query(), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ChangeStatus transitions a record to a new status.
func (rc *RecordsClient) ChangeStatus(ctx context.Context, id, status, notes string) (*Record, error) {
	body := map[string]string{"status": status, "notes": notes}
	var record Record
	if err := rc.client.post(ctx, "/api/v1/records/"+url.PathEscape(id)+"/status", body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// AddPayment records a partial payment against a record.
func (rc *RecordsClient) AddPayment(ctx context.Context, id string, amount float64) (*Record, error) {
	body := map[string]float64{"amount": amount}
	var record Record
	if err := rc.client.post(ctx, "/api/v1/records/"+url.PathEscape(id)+"/payments", body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ImportCSV uploads raw CSV for bulk ingestion.
func (rc *RecordsClient) ImportCSV(ctx context.Context, csv io.Reader, confirmWarnings bool) (*ImportReport, error) {
	payload, err := io.ReadAll(csv)
	if err != nil {
		return nil, fmt.Errorf("client: read CSV payload: %w", err)
	}
	path := "/api/v1/records/import"
	if confirmWarnings {
		path += "?confirm_warnings=true"
	}
	var report ImportReport
	if err := rc.client.doRaw(ctx, http.MethodPost, path, "text/csv", payload, &report); err != nil {
		// A fully rejected import answers 422 with the row-level report as
		// the body; recover it so callers can show per-row errors.
		if apiErr, ok := err.(*APIError); ok && apiErr.IsValidation() && len(apiErr.Details) > 0 {
			if jsonErr := json.Unmarshal(apiErr.Details, &report); jsonErr == nil && report.TotalRows > 0 {
				return &report, err
			}
		}
		return nil, err
	}
	return &report, nil
}

// ExportCSV writes the filtered record set as CSV into w. The response is
// fully read before anything is written, so a failed attempt leaves w
// untouched.
func (rc *RecordsClient) ExportCSV(ctx context.Context, opts ListRecordsOptions, w io.Writer) error {
	return rc.client.do(ctx, http.MethodGet, "/api/v1/records/export"+opts.query(), nil, w)
}

// Archive exports the filtered record set to object storage.
func (rc *RecordsClient) Archive(ctx context.Context, opts ListRecordsOptions, objectName string) (*ArchiveResult, error) {
	body := map[string]string{"object_name": objectName}
	var result ArchiveResult
	if err := rc.client.post(ctx, "/api/v1/records/export"+opts.query(), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefreshOverdue flips records past their payment date to overdue,
// returning how many transitioned.
func (rc *RecordsClient) RefreshOverdue(ctx context.Context) (int, error) {
	var result map[string]int
	if err := rc.client.post(ctx, "/api/v1/records/overdue/refresh", nil, &result); err != nil {
		return 0, err
	}
	return result["transitioned"], nil
}
