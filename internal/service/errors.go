package service

import (
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

// notFoundAs classifies gorm.ErrRecordNotFound as a NotFound for entity and passes other errors through.
func notFoundAs(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity)
	}
	return err
}

func staleAs(err error, message string) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		return apperror.Wrap(err, apperror.KindConflict, message)
	}
	return err
}

// failSpan records err on span. Client errors are marked as such so traces stay searchable.
func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		span.SetStatus(codes.Error, "internal error")
		return
	}
	span.SetStatus(codes.Error, string(kind))
}
