package models

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// IssueFilter enumerates every supported issue filter. Nil fields are not applied.
type IssueFilter struct {
	Query      string       `json:"query,omitempty"`
	Language   *string      `json:"language,omitempty"`
	MinAmount  *int64       `json:"min_amount,omitempty"`
	Status     *IssueStatus `json:"status,omitempty"`
	HasBounty  *bool        `json:"has_bounty,omitempty"`
	Repository *string      `json:"repository,omitempty"`
}

// IssueSort selects the ordering column for issue listings
type IssueSort string

const (
	IssueSortCreated IssueSort = "created"
	IssueSortUpdated IssueSort = "updated"
	IssueSortBounty  IssueSort = "bounty"
)

// IssueListOptions holds sorting and pagination for an issue search
type IssueListOptions struct {
	Page      int       `json:"page"`
	PerPage   int       `json:"per_page"`
	SortBy    IssueSort `json:"sort_by"`
	Ascending bool      `json:"ascending"`
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// IssuePage is a page of issues together with its pagination metadata
type IssuePage struct {
	Items      []*Issue   `json:"items"`
	Pagination Pagination `json:"pagination"`
}

const (
	DefaultPerPage = 50
	MaxPerPage     = 100
)

var ErrInvalidFilter = errors.New("invalid filter")

var knownListParams = map[string]bool{
	"q": true, "language": true, "min_amount": true, "status": true,
	"has_bounty": true, "repository": true,
	"page": true, "per_page": true, "sort_by": true, "order": true,
}

// NewPagination computes pagination metadata for a total row count
func NewPagination(page, perPage, total int) Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Validate rejects filter values the store cannot apply
func (f IssueFilter) Validate() error {
	if f.MinAmount != nil && *f.MinAmount < 0 {
		return fmt.Errorf("%w: min_amount must not be negative", ErrInvalidFilter)
	}
	if f.Status != nil && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, *f.Status)
	}
	return nil
}

// Normalize clamps pagination and fills defaults
func (o IssueListOptions) Normalize() IssueListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = DefaultPerPage
	}
	if o.PerPage > MaxPerPage {
		o.PerPage = MaxPerPage
	}
	if o.SortBy == "" {
		o.SortBy = IssueSortUpdated
	}
	return o
}

// ParseIssueFilter builds a filter and list options from URL query values.
// Unknown keys are rejected rather than ignored. min_amount is given in dollars.
func ParseIssueFilter(values url.Values) (IssueFilter, IssueListOptions, error) {
	var filter IssueFilter
	opts := IssueListOptions{}

	var unknown []string
	for key := range values {
		if !knownListParams[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return filter, opts, fmt.Errorf("%w: unsupported parameters %s", ErrInvalidFilter, strings.Join(unknown, ", "))
	}

	filter.Query = strings.TrimSpace(values.Get("q"))
	if v := values.Get("language"); v != "" {
		filter.Language = &v
	}
	if v := values.Get("repository"); v != "" {
		filter.Repository = &v
	}
	if v := values.Get("status"); v != "" {
		status := IssueStatus(strings.ToLower(v))
		filter.Status = &status
	}
	if v := values.Get("min_amount"); v != "" {
		dollars, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, opts, fmt.Errorf("%w: min_amount %q is not an integer", ErrInvalidFilter, v)
		}
		cents, err := DollarsToCents(dollars)
		if err != nil {
			return filter, opts, err
		}
		filter.MinAmount = &cents
	}
	if v := values.Get("has_bounty"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, opts, fmt.Errorf("%w: has_bounty %q is not a boolean", ErrInvalidFilter, v)
		}
		filter.HasBounty = &b
	}

	var err error
	if opts.Page, err = parseOptionalInt(values, "page"); err != nil {
		return filter, opts, err
	}
	if opts.PerPage, err = parseOptionalInt(values, "per_page"); err != nil {
		return filter, opts, err
	}

	switch sortBy := IssueSort(values.Get("sort_by")); sortBy {
	case "", IssueSortCreated, IssueSortUpdated, IssueSortBounty:
		opts.SortBy = sortBy
	default:
		return filter, opts, fmt.Errorf("%w: unknown sort_by %q", ErrInvalidFilter, sortBy)
	}

	switch order := values.Get("order"); order {
	case "", "desc":
	case "asc":
		opts.Ascending = true
	default:
		return filter, opts, fmt.Errorf("%w: unknown order %q", ErrInvalidFilter, order)
	}

	if err := filter.Validate(); err != nil {
		return filter, opts, err
	}
	return filter, opts.Normalize(), nil
}

// DollarsToCents converts a whole-dollar amount, rejecting values that do not fit in cents
func DollarsToCents(dollars int64) (int64, error) {
	if dollars > math.MaxInt64/100 || dollars < math.MinInt64/100 {
		return 0, fmt.Errorf("%w: amount %d is out of range", ErrInvalidFilter, dollars)
	}
	return dollars * 100, nil
}

func parseOptionalInt(values url.Values, key string) (int, error) {
	v := values.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidFilter, key, v)
	}
	return n, nil
}
