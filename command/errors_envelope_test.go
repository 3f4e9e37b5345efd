package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/metorial/go-callbacks/core"
)

func TestRecordEventMessage_ValidateReturnsRichError(t *testing.T) {
	err := (RecordEventMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %q", rich.Category)
	}
	if rich.TextCode != core.CallbackErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.CallbackErrorBadInput, rich.TextCode)
	}
}

func TestRecordEventCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *RecordEventCommand
	err := cmd.Execute(context.Background(), RecordEventMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
