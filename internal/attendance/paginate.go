package attendance

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Pagination defaults observed against the live upstream. The page ceiling
// bounds the loop when the upstream never reports hasNextPage=false; hitting
// it truncates the result set, which is logged.
const (
	DefaultPageLimit = 100
	DefaultMaxPages  = 10
)

// PageResult is one decoded page of attendance records.
type PageResult struct {
	Records     []Record
	HasNextPage bool
}

// PageFunc fetches one page of records. Implementations are expected to be
// plain I/O with no retry logic of their own.
type PageFunc func(ctx context.Context, page, limit int) (PageResult, error)

// FetchOptions tunes the pagination loop. Zero values select the defaults.
type FetchOptions struct {
	PageLimit int
	MaxPages  int
	// FailFast propagates a page-fetch error instead of returning the
	// records accumulated so far. The lenient default favors partial data
	// over no data.
	FailFast bool
	Logger   *zap.Logger
}

// FetchAllRecords drives fetch sequentially from page 1 until the upstream
// reports no next page or the page ceiling is reached. Output order is page
// concatenation order; callers needing date order must sort (SortRecords).
//
// With the default lenient policy a mid-pagination failure returns the
// records accumulated so far and a nil error.
func FetchAllRecords(ctx context.Context, fetch PageFunc, opts FetchOptions) ([]Record, error) {
	limit := opts.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	records := make([]Record, 0, limit)
	hasMore := true
	for page := 1; hasMore; page++ {
		if page > maxPages {
			logger.Warn("pagination ceiling reached, result truncated",
				zap.Int("max_pages", maxPages),
				zap.Int("records", len(records)))
			break
		}
		if err := ctx.Err(); err != nil {
			return records, err
		}

		result, err := fetch(ctx, page, limit)
		if err != nil {
			if opts.FailFast {
				return records, err
			}
			logger.Warn("page fetch failed, keeping partial records",
				zap.Int("page", page),
				zap.Int("records", len(records)),
				zap.Error(err))
			break
		}

		records = append(records, result.Records...)
		hasMore = result.HasNextPage
	}
	return records, nil
}

// pageEnvelope matches the two observed page payload shapes: records nested
// under "records" or under "data".
type pageEnvelope struct {
	Records    json.RawMessage `json:"records"`
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		HasNextPage bool `json:"hasNextPage"`
	} `json:"pagination"`
}

// DecodePage decodes one raw page body, tolerating both payload shapes. A
// page whose payload is not an array is skipped, not fatal: the result keeps
// the pagination flag so the loop can continue.
func DecodePage(body []byte) (PageResult, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return PageResult{}, err
	}

	payload := env.Records
	if payload == nil {
		payload = env.Data
	}

	result := PageResult{HasNextPage: env.Pagination.HasNextPage}
	if payload == nil {
		return result, nil
	}

	var raws []rawRecord
	if err := json.Unmarshal(payload, &raws); err != nil {
		// Non-array payload: skip this page's records.
		return result, nil
	}
	result.Records = make([]Record, 0, len(raws))
	for _, raw := range raws {
		result.Records = append(result.Records, raw.normalize())
	}
	return result, nil
}
