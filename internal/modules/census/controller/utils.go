package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/aggregate"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/fetcher"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/geography"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/normalize"
)

// statusFor maps census errors to an HTTP status and a message safe to show users.
// PartialDataError is checked before the fetch errors it wraps.
func statusFor(err error) (int, string) {
	var (
		invalid   *aggregate.InvalidStation
		partial   *aggregate.PartialDataError
		mismatch  *aggregate.SchemaMismatch
		malformed *normalize.MalformedResponse
		failed    *fetcher.FetchFailed
		transient *fetcher.TransientError
		permanent *fetcher.PermanentError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "census data took too long to load"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled"
	case errors.Is(err, geography.ErrUnknownStation):
		return http.StatusNotFound, "unknown station"
	case errors.Is(err, geography.ErrUnknownDataset):
		return http.StatusNotFound, "unknown dataset"
	case errors.Is(err, geography.ErrUnknownArea):
		return http.StatusNotFound, "unknown area"
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, "station has no wards to aggregate"
	case errors.As(err, &partial):
		return http.StatusBadGateway, "census data is incomplete for " + partial.Ward.Name
	case errors.As(err, &mismatch):
		return http.StatusBadGateway, "census categories did not match the expected schema"
	case errors.As(err, &malformed):
		return http.StatusBadGateway, "census provider returned an unreadable response"
	case errors.As(err, &failed), errors.As(err, &transient):
		return http.StatusServiceUnavailable, "census provider is temporarily unavailable"
	case errors.As(err, &permanent):
		return http.StatusBadGateway, "census provider rejected the request"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
