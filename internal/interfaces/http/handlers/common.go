// Package handlers contains the HTTP handlers for the royalty engine's
// REST API: record submission and lifecycle, contract management, summary
// reports, and health probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// actorHeader identifies the operator performing a mutation. The
	// dashboard gateway sets it from the authenticated session.
	actorHeader  = "X-Actor"
	defaultActor = "api"

	dateLayout = "2006-01-02"
)

// actorFrom resolves the acting operator for audit attribution.
func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
		return actor
	}
	return defaultActor
}

// parsePagination extracts page and page_size query parameters, clamping
// page_size to the API maximum.
func parsePagination(r *http.Request) common.Pagination {
	p := common.Pagination{Page: 1, PageSize: defaultPageSize}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
			p.PageSize = n
		}
	}
	return p
}

// parseDateQuery reads an optional YYYY-MM-DD query parameter.
func parseDateQuery(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, errors.Newf(errors.ErrCodeValidation, "%s must be a YYYY-MM-DD date, got %q", name, v)
	}
	return &t, nil
}

// parseSortQuery reads a sort parameter of the form "field" or "field:desc",
// comma separated for multiple keys.
func parseSortQuery(r *http.Request) []common.SortField {
	raw := r.URL.Query().Get("sort")
	if raw == "" {
		return nil
	}
	var out []common.SortField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, order := part, common.SortAsc
		if i := strings.IndexByte(part, ':'); i >= 0 {
			field = part[:i]
			if strings.EqualFold(part[i+1:], string(common.SortDesc)) {
				order = common.SortDesc
			}
		}
		out = append(out, common.SortField{Field: field, Order: order})
	}
	return out
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	writeJSON(w, statusCode, ErrorResponse{
		Code:    string(errors.GetCode(err)),
		Message: err.Error(),
	})
}

// writeAppError maps an application error to its HTTP status. Server-side
// codes are masked so internals never leak to API clients.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	if errors.IsServerError(code) {
		writeJSON(w, status, ErrorResponse{
			Code:    string(code),
			Message: errors.DefaultMessageForCode(code),
		})
		return
	}
	writeError(w, status, err)
}
