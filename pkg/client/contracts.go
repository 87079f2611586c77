package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Tier is one volume band of a tiered calculation. A nil To means the band
// is open-ended.
type Tier struct {
	From float64  `json:"from"`
	To   *float64 `json:"to"`
	Rate float64  `json:"rate"`
}

// Scale is one bracket of a sliding-scale calculation.
type Scale struct {
	From float64  `json:"from"`
	To   *float64 `json:"to"`
	Rate float64  `json:"rate"`
}

// CalculationParams parameterizes a contract's calculation method.
type CalculationParams struct {
	Rate          float64 `json:"rate,omitempty"`
	Tiers         []Tier  `json:"tiers,omitempty"`
	Scales        []Scale `json:"scales,omitempty"`
	BasePrice     float64 `json:"base_price,omitempty"`
	MinimumAmount float64 `json:"minimum_amount,omitempty"`
	BaseMethod    string  `json:"base_method,omitempty"`
}

// Contract is one royalty contract as returned by the API.
type Contract struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`

	Entity            string            `json:"entity"`
	Mineral           string            `json:"mineral"`
	CalculationType   string            `json:"calculation_type"`
	CalculationParams CalculationParams `json:"calculation_params"`
	StartDate         time.Time         `json:"start_date"`
	EndDate           *time.Time        `json:"end_date,omitempty"`
}

// ContractRequest is the payload for creating or amending a contract.
// Dates are YYYY-MM-DD strings.
type ContractRequest struct {
	Entity            string            `json:"entity"`
	Mineral           string            `json:"mineral"`
	CalculationType   string            `json:"calculation_type"`
	CalculationParams CalculationParams `json:"calculation_params"`
	StartDate         string            `json:"start_date"`
	EndDate           string            `json:"end_date,omitempty"`
}

// ContractList is a paginated contract listing.
type ContractList struct {
	Contracts []*Contract `json:"contracts"`
	Total     int64       `json:"total"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
}

// ListContractsOptions filters and paginates contract listings.
type ListContractsOptions struct {
	Entity   string
	Mineral  string
	ActiveAt *time.Time
	Page     int
	PageSize int
}

func (o ListContractsOptions) query() string {
	q := url.Values{}
	if o.Entity != "" {
		q.Set("entity", o.Entity)
	}
	if o.Mineral != "" {
		q.Set("mineral", o.Mineral)
	}
	if o.ActiveAt != nil {
		q.Set("active_at", o.ActiveAt.Format("2006-01-02"))
	}
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

// ContractsClient covers the /api/v1/contracts endpoints.
type ContractsClient struct {
	client *Client
}

// Create registers a new contract.
func (cc *ContractsClient) Create(ctx context.Context, req ContractRequest) (*Contract, error) {
	var ct Contract
	if err := cc.client.post(ctx, "/api/v1/contracts", req, &ct); err != nil {
		return nil, err
	}
	return &ct, nil
}

// Get fetches one contract by ID.
func (cc *ContractsClient) Get(ctx context.Context, id string) (*Contract, error) {
	var ct Contract
	if err := cc.client.get(ctx, "/api/v1/contracts/"+url.PathEscape(id), &ct); err != nil {
		return nil, err
	}
	return &ct, nil
}

// List returns contracts matching the options.
func (cc *ContractsClient) List(ctx context.Context, opts ListContractsOptions) (*ContractList, error) {
	var list ContractList
	if err := cc.client.get(ctx, "/api/v1/contracts"+opts.query(), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Active resolves the contract governing an entity and mineral at a given
// date. A zero time means today.
func (cc *ContractsClient) Active(ctx context.Context, entity, mineral string, at time.Time) (*Contract, error) {
	q := url.Values{}
	q.Set("entity", entity)
	q.Set("mineral", mineral)
	if !at.IsZero() {
		q.Set("at", at.Format("2006-01-02"))
	}
	var ct Contract
	if err := cc.client.get(ctx, "/api/v1/contracts/active?"+q.Encode(), &ct); err != nil {
		return nil, err
	}
	return &ct, nil
}

// Amend closes the contract and creates a successor with the new terms.
func (cc *ContractsClient) Amend(ctx context.Context, id string, req ContractRequest) (*Contract, error) {
	var successor Contract
	if err := cc.client.put(ctx, "/api/v1/contracts/"+url.PathEscape(id), req, &successor); err != nil {
		return nil, err
	}
	return &successor, nil
}

// Delete removes a contract.
func (cc *ContractsClient) Delete(ctx context.Context, id string) error {
	return cc.client.delete(ctx, "/api/v1/contracts/"+url.PathEscape(id))
}
