package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/minegov/royalty-engine/internal/application/royalty"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// maxImportBody bounds uploaded CSV size.
const maxImportBody = 16 << 20

// RoyaltyHandler serves the record lifecycle endpoints.
type RoyaltyHandler struct {
	records  *app.Service
	importer *app.ImportService
	exporter *app.ExportService
	logger   logging.Logger
}

func NewRoyaltyHandler(
	records *app.Service,
	importer *app.ImportService,
	exporter *app.ExportService,
	logger logging.Logger,
) *RoyaltyHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RoyaltyHandler{
		records:  records,
		importer: importer,
		exporter: exporter,
		logger:   logger.Named("http.records"),
	}
}

// SubmitRequest is the request body for submitting a royalty record.
type SubmitRequest struct {
	domain.Candidate
	ConfirmWarnings bool `json:"confirm_warnings,omitempty"`
}

// SubmitResponse pairs the persisted record with its validation outcome so
// clients can surface confirmed warnings.
type SubmitResponse struct {
	Record     *domain.Record `json:"record"`
	Validation domain.Result  `json:"validation"`
}

// Submit handles POST /api/v1/records.
func (h *RoyaltyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Validation("invalid request body"))
		return
	}

	record, result, err := h.records.Submit(r.Context(), app.SubmitInput{
		Candidate:       req.Candidate,
		Actor:           actorFrom(r),
		ConfirmWarnings: req.ConfirmWarnings,
	})
	if err != nil {
		h.writeSubmitError(w, result, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{Record: record, Validation: result})
}

// writeSubmitError attaches the validation issue list to validation and
// warning-confirmation failures; other errors go through the standard map.
func (h *RoyaltyHandler) writeSubmitError(w http.ResponseWriter, result domain.Result, err error) {
	code := errors.GetCode(err)
	switch code {
	case errors.CodeValidationFailed, errors.CodeWarningsUnconfirmed:
		writeJSON(w, errors.HTTPStatusForCode(code), ErrorResponse{
			Code:    string(code),
			Message: err.Error(),
			Details: result,
		})
	default:
		h.logger.Error("record submission failed", logging.Err(err))
		writeAppError(w, err)
	}
}

// Get handles GET /api/v1/records/{recordID}.
func (h *RoyaltyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "recordID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("record id is required"))
		return
	}

	record, err := h.records.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// List handles GET /api/v1/records.
func (h *RoyaltyHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.records.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("record listing failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StatusRequest is the request body for a status transition.
type StatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// ChangeStatus handles POST /api/v1/records/{recordID}/status.
func (h *RoyaltyHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "recordID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("record id is required"))
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Validation("invalid request body"))
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.records.ChangeStatus(r.Context(), app.StatusInput{
		RecordID: id,
		To:       status,
		Actor:    actorFrom(r),
		Notes:    req.Notes,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// PaymentRequest is the request body for recording a partial payment.
type PaymentRequest struct {
	Amount float64 `json:"amount"`
}

// AddPayment handles POST /api/v1/records/{recordID}/payments.
func (h *RoyaltyHandler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "recordID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("record id is required"))
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Validation("invalid request body"))
		return
	}

	record, err := h.records.AddPartialPayment(r.Context(), app.PaymentInput{
		RecordID: id,
		Amount:   req.Amount,
		Actor:    actorFrom(r),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Import handles POST /api/v1/records/import. The body is raw CSV;
// confirm_warnings=true lets rows with warnings through.
func (h *RoyaltyHandler) Import(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm_warnings") == "true"
	body := http.MaxBytesReader(w, r.Body, maxImportBody)

	report, err := h.importer.ImportCSV(r.Context(), body, actorFrom(r), confirm)
	if err != nil {
		h.logger.Error("bulk import failed", logging.Err(err))
		writeAppError(w, err)
		return
	}

	status := http.StatusOK
	if report.Successful == 0 && len(report.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

// Export handles GET /api/v1/records/export, streaming the filtered record
// set as a CSV attachment.
func (h *RoyaltyHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filename := fmt.Sprintf("royalty-records-%s.csv", time.Now().UTC().Format(dateLayout))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := h.exporter.ExportCSV(r.Context(), filter, w); err != nil {
		// Headers are already gone; all we can do is log.
		h.logger.Error("record export failed", logging.Err(err))
	}
}

// ArchiveRequest is the request body for archiving an export to object
// storage.
type ArchiveRequest struct {
	ObjectName string `json:"object_name"`
}

// ArchiveResponse points at the stored artifact.
type ArchiveResponse struct {
	Location string `json:"location"`
	Rows     int    `json:"rows"`
}

// ExportToStore handles POST /api/v1/records/export. The filtered set is
// written to object storage and the artifact location returned.
func (h *RoyaltyHandler) ExportToStore(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Validation("invalid request body"))
		return
	}
	if req.ObjectName == "" {
		req.ObjectName = fmt.Sprintf("exports/royalty-records-%s.csv", time.Now().UTC().Format("20060102-150405"))
	}

	location, rows, err := h.exporter.ExportToStore(r.Context(), filter, req.ObjectName)
	if err != nil {
		h.logger.Error("export archive failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ArchiveResponse{Location: location, Rows: rows})
}

// RefreshOverdue handles POST /api/v1/records/overdue/refresh, flipping
// records past their payment date to overdue on demand.
func (h *RoyaltyHandler) RefreshOverdue(w http.ResponseWriter, r *http.Request) {
	flipped, err := h.records.RefreshOverdue(r.Context())
	if err != nil {
		h.logger.Error("overdue refresh failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"transitioned": flipped})
}

// recordFilterFrom builds a record filter from list/export query parameters.
func recordFilterFrom(r *http.Request) (domain.Filter, error) {
	filter := domain.Filter{
		Entity:     r.URL.Query().Get("entity"),
		Mineral:    r.URL.Query().Get("mineral"),
		ContractID: common.ID(r.URL.Query().Get("contract_id")),
		Pagination: parsePagination(r),
		Sort:       parseSortQuery(r),
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status, err := domain.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}

	var err error
	if filter.PeriodFrom, err = parseDateQuery(r, "period_from"); err != nil {
		return filter, err
	}
	if filter.PeriodTo, err = parseDateQuery(r, "period_to"); err != nil {
		return filter, err
	}
	if filter.DueBefore, err = parseDateQuery(r, "due_before"); err != nil {
		return filter, err
	}
	if filter.DueAfter, err = parseDateQuery(r, "due_after"); err != nil {
		return filter, err
	}
	return filter, nil
}
