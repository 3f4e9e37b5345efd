package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestCallbackErrorMapperClassifiesByMessage(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		httpCode int
	}{
		{"not found", fmt.Errorf("%w: cbe_1", ErrEventNotFound), goerrors.CategoryNotFound, CallbackErrorNotFound, http.StatusNotFound},
		{"terminal", fmt.Errorf("%w: succeeded", ErrEventTerminal), goerrors.CategoryConflict, CallbackErrorRetryExhausted, http.StatusConflict},
		{"signature", fmt.Errorf("ingest: signature mismatch"), goerrors.CategoryAuth, CallbackErrorVerificationFailed, http.StatusUnauthorized},
		{"bad input", fmt.Errorf("core: callback id is required"), goerrors.CategoryBadInput, CallbackErrorBadInput, http.StatusBadRequest},
		{"lease", fmt.Errorf("sqlstore: lease is held by another worker"), goerrors.CategoryConflict, CallbackErrorLeaseConflict, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := callbackErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.httpCode {
				t.Fatalf("expected http code %d, got %d", tc.httpCode, mapped.Code)
			}
		})
	}
}

func TestCallbackErrorMapperPreservesExistingEnvelope(t *testing.T) {
	original := goerrors.New("delivery rejected", goerrors.CategoryExternal).
		WithTextCode(CallbackErrorDeliveryTransient)

	mapped := callbackErrorMapper(original)
	if mapped.TextCode != CallbackErrorDeliveryTransient {
		t.Fatalf("expected text code to survive, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected gateway status fill-in, got %d", mapped.Code)
	}
}

func TestCallbackErrorMapperNil(t *testing.T) {
	if callbackErrorMapper(nil) != nil {
		t.Fatalf("nil error must map to nil")
	}
}
