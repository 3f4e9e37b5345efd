package ingest

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/metorial/go-callbacks/core"
)

func ingestError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ingestWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return ingestError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ingestBadInput(message string, metadata map[string]any) error {
	return ingestError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.CallbackErrorBadInput,
		metadata,
	)
}

func ingestUnauthorized(source error, message string, metadata map[string]any) error {
	return ingestWrapError(
		source,
		goerrors.CategoryAuth,
		message,
		http.StatusUnauthorized,
		core.CallbackErrorVerificationFailed,
		metadata,
	)
}

func ingestInternal(message string, metadata map[string]any) error {
	return ingestError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.CallbackErrorInternal,
		metadata,
	)
}
