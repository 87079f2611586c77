package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minegov/royalty-engine/internal/domain/contract"
	"github.com/minegov/royalty-engine/internal/domain/pricing"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
	"github.com/minegov/royalty-engine/pkg/types/common"
)

// ContractHandler serves the contract management endpoints.
type ContractHandler struct {
	contracts contract.Repository
	logger    logging.Logger
}

func NewContractHandler(contracts contract.Repository, logger logging.Logger) *ContractHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ContractHandler{
		contracts: contracts,
		logger:    logger.Named("http.contracts"),
	}
}

// ContractRequest is the request body for creating or amending a contract.
type ContractRequest struct {
	Entity            string         `json:"entity"`
	Mineral           string         `json:"mineral"`
	CalculationType   string         `json:"calculation_type"`
	CalculationParams pricing.Params `json:"calculation_params"`
	StartDate         string         `json:"start_date"`
	EndDate           string         `json:"end_date,omitempty"`
}

func (req *ContractRequest) window() (time.Time, *time.Time, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return time.Time{}, nil, errors.Validation("start_date must be a YYYY-MM-DD date")
	}
	if req.EndDate == "" {
		return start, nil, nil
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return time.Time{}, nil, errors.Validation("end_date must be a YYYY-MM-DD date")
	}
	return start, &end, nil
}

// Create handles POST /api/v1/contracts.
func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Validation("invalid request body"))
		return
	}
	start, end, err := req.window()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ct, err := contract.NewContract(req.Entity, req.Mineral, req.CalculationType, req.CalculationParams, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.contracts.Save(r.Context(), ct); err != nil {
		h.logger.Error("contract creation failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ct)
}

// Get handles GET /api/v1/contracts/{contractID}.
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "contractID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("contract id is required"))
		return
	}

	ct, err := h.contracts.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// ContractListResult is a paginated contract listing.
type ContractListResult struct {
	Contracts []*contract.Contract `json:"contracts"`
	Total     int64                `json:"total"`
	Page      int                  `json:"page"`
	PageSize  int                  `json:"page_size"`
}

// List handles GET /api/v1/contracts.
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := contract.Filter{
		Entity:     r.URL.Query().Get("entity"),
		Mineral:    r.URL.Query().Get("mineral"),
		Pagination: parsePagination(r),
	}
	activeAt, err := parseDateQuery(r, "active_at")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter.ActiveAt = activeAt

	contracts, total, err := h.contracts.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("contract listing failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ContractListResult{
		Contracts: contracts,
		Total:     total,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	})
}

// Active handles GET /api/v1/contracts/active. It resolves the contract
// governing an entity and mineral at a given date (default today).
func (h *ContractHandler) Active(w http.ResponseWriter, r *http.Request) {
	entity := r.URL.Query().Get("entity")
	mineral := r.URL.Query().Get("mineral")
	if entity == "" || mineral == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("entity and mineral are required"))
		return
	}

	at := time.Now().UTC()
	if parsed, err := parseDateQuery(r, "at"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if parsed != nil {
		at = *parsed
	}

	ct, err := h.contracts.FindActive(r.Context(), entity, mineral, at)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// Amend handles PUT /api/v1/contracts/{contractID}. Financial terms are
// immutable in place, so an amendment closes the old contract the day the
// new window opens and creates a successor.
func (h *ContractHandler) Amend(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "contractID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("contract id is required"))
		return
	}

	var req ContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Validation("invalid request body"))
		return
	}
	start, end, err := req.window()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	old, err := h.contracts.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if req.Entity == "" {
		req.Entity = old.Entity
	}
	if req.Mineral == "" {
		req.Mineral = old.Mineral
	}

	successor, err := contract.NewContract(req.Entity, req.Mineral, req.CalculationType, req.CalculationParams, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}

	closed := start.AddDate(0, 0, -1)
	if closed.Before(old.StartDate) {
		writeError(w, http.StatusBadRequest,
			errors.Validation("amendment must start after the existing contract's start date"))
		return
	}
	old.EndDate = &closed
	old.Version++
	old.UpdatedAt = time.Now().UTC()

	if err := h.contracts.Save(r.Context(), old); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.contracts.Save(r.Context(), successor); err != nil {
		h.logger.Error("contract amendment failed", logging.String("contract_id", string(id)), logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, successor)
}

// Delete handles DELETE /api/v1/contracts/{contractID}.
func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := common.ID(chi.URLParam(r, "contractID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.Validation("contract id is required"))
		return
	}

	if err := h.contracts.Delete(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
