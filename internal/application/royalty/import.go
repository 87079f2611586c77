package royalty

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// Recognized CSV column headers, matched case-insensitively after trimming.
const (
	colEntity         = "entity id"
	colMineral        = "mineral"
	colVolume         = "production volume"
	colUnitPrice      = "unit price"
	colPeriodStart    = "period start"
	colPeriodEnd      = "period end"
	colCurrency       = "currency"
	colPaymentDate    = "payment date"
	colDeclaredAmount = "declared amount"
	colNotes          = "notes"
)

const importDateLayout = "2006-01-02"

// defaultPaymentTerm is applied when a row has no payment date column:
// payment falls due this long after the reporting period closes.
const defaultPaymentTerm = 30 * 24 * time.Hour

// RowIssue ties a validation message to the CSV row that produced it.
// Row numbers are 1-based and count the header row.
type RowIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ImportReport summarizes a bulk import. Rows fail independently; a report
// with both successes and errors is the normal partial-success outcome.
type ImportReport struct {
	TotalRows  int         `json:"total_rows"`
	Successful int         `json:"successful"`
	RecordIDs  []common.ID `json:"record_ids,omitempty"`
	Errors     []RowIssue  `json:"errors,omitempty"`
	Warnings   []RowIssue  `json:"warnings,omitempty"`
}

// ImportService ingests royalty records in bulk from CSV. Every row goes
// through the same validate-calculate-persist path as a single submission.
type ImportService struct {
	records *Service
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewImportService wires the bulk importer.
func NewImportService(records *Service, metrics *prometheus.AppMetrics, logger logging.Logger) *ImportService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ImportService{
		records: records,
		metrics: metrics,
		logger:  logger.Named("app.import"),
	}
}

// ImportCSV reads records from r and submits them one by one. A malformed
// header aborts the whole import; anything after that fails row by row.
func (s *ImportService) ImportCSV(ctx context.Context, r io.Reader, actor string, confirmWarnings bool) (*ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeImportFailed, "failed to read CSV header")
	}
	columns, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{}
	baseCurrency := s.records.BaseCurrency()
	rowNum := 1
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.TotalRows++
			report.Errors = append(report.Errors, RowIssue{Row: rowNum, Message: fmt.Sprintf("malformed CSV row: %v", err)})
			s.countRow(false)
			continue
		}
		report.TotalRows++

		candidate, parseIssues := parseRow(row, columns, baseCurrency)
		if len(parseIssues) > 0 {
			for _, issue := range parseIssues {
				issue.Row = rowNum
				report.Errors = append(report.Errors, issue)
			}
			s.countRow(false)
			continue
		}

		record, result, err := s.records.Submit(ctx, SubmitInput{
			Candidate:       candidate,
			Actor:           actor,
			ConfirmWarnings: confirmWarnings,
		})
		for _, w := range result.Warnings {
			report.Warnings = append(report.Warnings, RowIssue{Row: rowNum, Field: w.Field, Message: w.Message})
		}
		if err != nil {
			if len(result.Errors) > 0 {
				for _, e := range result.Errors {
					report.Errors = append(report.Errors, RowIssue{Row: rowNum, Field: e.Field, Message: e.Message})
				}
			} else {
				report.Errors = append(report.Errors, RowIssue{Row: rowNum, Message: err.Error()})
			}
			s.countRow(false)
			continue
		}

		report.Successful++
		report.RecordIDs = append(report.RecordIDs, record.ID)
		s.countRow(true)
	}

	s.logger.Info("bulk import finished",
		logging.Int("total_rows", report.TotalRows),
		logging.Int("successful", report.Successful),
		logging.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *ImportService) countRow(ok bool) {
	if s.metrics == nil {
		return
	}
	result := "failed"
	if ok {
		result = "success"
	}
	s.metrics.ImportRowsTotal.WithLabelValues(result).Inc()
}

// mapHeader resolves each recognized column to its index. Entity, mineral,
// volume, and the period bounds are mandatory.
func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colEntity, colMineral, colVolume, colPeriodStart, colPeriodEnd} {
		if _, ok := columns[required]; !ok {
			return nil, errors.Newf(errors.CodeImportFailed, "CSV header is missing required column %q", required)
		}
	}
	return columns, nil
}

// parseRow builds a candidate from one CSV row. Rows without a currency
// column are tagged with the ruleset's currency of record.
func parseRow(row []string, columns map[string]int, baseCurrency string) (domain.Candidate, []RowIssue) {
	var issues []RowIssue

	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	parseFloat := func(name string) float64 {
		raw := cell(name)
		if raw == "" {
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			issues = append(issues, RowIssue{Field: name, Message: fmt.Sprintf("invalid number %q", raw)})
		}
		return v
	}
	parseDate := func(name string) time.Time {
		raw := cell(name)
		if raw == "" {
			return time.Time{}
		}
		t, err := time.Parse(importDateLayout, raw)
		if err != nil {
			issues = append(issues, RowIssue{Field: name, Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw)})
		}
		return t
	}

	candidate := domain.Candidate{
		Entity:           cell(colEntity),
		Mineral:          cell(colMineral),
		ProductionVolume: parseFloat(colVolume),
		UnitPrice:        parseFloat(colUnitPrice),
		Currency:         cell(colCurrency),
		DeclaredAmount:   parseFloat(colDeclaredAmount),
		Notes:            cell(colNotes),
		ReportingPeriod: common.Period{
			Start: parseDate(colPeriodStart),
			End:   parseDate(colPeriodEnd),
		},
		PaymentDate: parseDate(colPaymentDate),
	}
	if candidate.Currency == "" {
		candidate.Currency = baseCurrency
	}
	if candidate.PaymentDate.IsZero() && !candidate.ReportingPeriod.End.IsZero() {
		candidate.PaymentDate = candidate.ReportingPeriod.End.Add(defaultPaymentTerm)
	}
	return candidate, issues
}
