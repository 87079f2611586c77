package handlers

import (
	"net/http"

	"github.com/minegov/royalty-engine/internal/application/reporting"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
)

// ReportHandler serves the dashboard summary endpoints.
type ReportHandler struct {
	reports *reporting.Service
	logger  logging.Logger
}

func NewReportHandler(reports *reporting.Service, logger logging.Logger) *ReportHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ReportHandler{
		reports: reports,
		logger:  logger.Named("http.reports"),
	}
}

// Summary handles GET /api/v1/reports/summary. It accepts the same filter
// parameters as the record listing and aggregates everything that matches.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := h.reports.Summarize(r.Context(), filter)
	if err != nil {
		h.logger.Error("summary report failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
