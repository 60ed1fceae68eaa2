package ingest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	fleetdomain "fleet-tracker/internal/fleet/domain"
)

var (
	// ErrStaleFix is returned for a fix whose sequence is not above the last accepted one.
	ErrStaleFix = errors.New("ingest: stale fix")
	// ErrDriverMismatch is returned when the body names a different driver than the caller.
	ErrDriverMismatch = errors.New("ingest: driver does not match authenticated caller")
)

// RawCoords is a client-supplied coordinate pair.
type RawCoords struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// RawFix is a position sample as reported by a driver client, before validation.
type RawFix struct {
	Coords   RawCoords           `json:"coords"`
	Altitude *float64            `json:"altitude,omitempty"`
	Accuracy *float64            `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Speed    *float64            `json:"speed,omitempty"`
	Seq      *uint64             `json:"seq,omitempty"`
	DriverID *fleetdomain.UserID `json:"driverId,omitempty"`
}

// FieldError is one failed field check.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports a malformed or out-of-range fix. It is the only ingestion
// failure surfaced to the driver.
type ValidationError struct {
	Fields []FieldError
	err    error
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "ingest: invalid fix: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.err }

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks raw against its struct tags and the caller identity.
func validate(v *validator.Validate, caller fleetdomain.UserID, raw RawFix) error {
	var fields []FieldError
	if err := v.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("ingest: validate fix: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fieldPath(fe.Namespace()), Reason: reason(fe)})
		}
	}
	if raw.DriverID != nil && *raw.DriverID != caller {
		return &ValidationError{
			Fields: append(fields, FieldError{Field: "driverId", Reason: "does not match the authenticated driver"}),
			err:    ErrDriverMismatch,
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace ("RawFix.coords.lat").
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	}
	return "failed " + fe.Tag()
}
