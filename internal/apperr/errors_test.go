package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestDescribeMapsTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("mirror a/b/c: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", ErrConflict, http.StatusConflict, "conflict"},
		{"unauthorized", fmt.Errorf("token banned: %w", ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{"bad request", ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{"upstream", fmt.Errorf("status 503: %w", ErrUpstreamUnavailable), http.StatusBadGateway, "upstream_unavailable"},
		{"store failure", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desc := Describe(tc.err)
			if desc.Status != tc.status || desc.Code != tc.code {
				t.Fatalf("expected %d/%s, got %d/%s", tc.status, tc.code, desc.Status, desc.Code)
			}
		})
	}
}

func TestDescribeBadRequestKeepsReason(t *testing.T) {
	desc := Describe(fmt.Errorf("client id is required: %w", ErrBadRequest))
	if desc.Message != "client id is required: bad request" {
		t.Fatalf("unexpected message: %s", desc.Message)
	}
	if Describe(ErrBadRequest).Message == "" {
		t.Fatalf("bare bad request should carry a default message")
	}
}
