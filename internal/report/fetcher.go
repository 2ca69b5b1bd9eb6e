package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/skypro1111/speechcoach/internal/apperr"
	"github.com/skypro1111/speechcoach/internal/remote"
)

// Path is the report endpoint relative to the service base URL
const Path = "/report/"

// Fetcher retrieves reports. Each call is a single attempt.
type Fetcher struct {
	remote *remote.Client
	logger *slog.Logger
}

// NewFetcher creates a fetcher on top of rc
func NewFetcher(rc *remote.Client, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{remote: rc, logger: logger}
}

// Fetch retrieves and validates the report for record id
func (f *Fetcher) Fetch(ctx context.Context, id int64, creds remote.Credentials) (*Report, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: no record id", apperr.ErrPreconditionFailed)
	}
	if !creds.Authenticated() {
		return nil, fmt.Errorf("%w: %w: no token", apperr.ErrPreconditionFailed, apperr.ErrUnauthenticated)
	}

	start := time.Now()
	resp, err := f.remote.Request(ctx, creds).
		SetQueryParams(map[string]string{
			"id":    strconv.FormatInt(id, 10),
			"email": creds.Email,
		}).
		Get(Path)
	if err := f.remote.Check("report", resp, err, apperr.ErrFetchFailed); err != nil {
		f.logger.Warn("Report fetch failed",
			slog.Int64("record_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	rep, err := Parse(resp.Body())
	if err != nil {
		f.logger.Warn("Report rejected",
			slog.Int64("record_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	f.logger.Info("Report fetched",
		slog.Int64("record_id", id),
		slog.Duration("elapsed", time.Since(start)),
	)
	return rep, nil
}

// Parse decodes a report body. The service may answer with the report itself
// or wrapped as {"report": {...}}.
func Parse(body []byte) (*Report, error) {
	var envelope struct {
		Report json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrMalformedReport, err)
	}
	if raw := bytes.TrimSpace(envelope.Report); len(raw) > 0 && raw[0] == '{' {
		body = raw
	}

	var rep Report
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrMalformedReport, err)
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	return &rep, nil
}
