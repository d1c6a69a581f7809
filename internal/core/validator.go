package core

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"weatherproof/internal/types"
)

// errCodeValidationInvalidField is the generic code for a field that failed a
// rule without a more specific domain code.
const errCodeValidationInvalidField types.ErrorCode = "validation_invalid_field"

// ValidationError describes a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult carries both blocking errors and non-blocking warnings from
// a validation pass. Warnings are surfaced to clients via ResponseMeta without
// rejecting the request.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether the result contains no blocking errors. Warnings do
// not affect validity.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Warner is implemented by request types that can emit non-blocking warnings
// (deprecated fields, suspicious but legal values).
type Warner interface {
	ValidationWarnings() []string
}

// Validator wraps go-playground/validator with domain-specific rules and maps
// failures onto the platform's typed error codes.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json tag names in errors so clients see wire-format field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// is_timezone validates IANA timezone identifiers (e.g., America/Denver).
	_ = v.RegisterValidation("is_timezone", validateTimezone)

	// is_conus validates that a latitude falls within the continental US band
	// covered by the upstream weather provider.
	_ = v.RegisterValidation("is_conus", validateCONUSLat)

	// delay_cause validates DelayCause enum values.
	_ = v.RegisterValidation("delay_cause", validateDelayCause)

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates s and returns a *types.AppError describing every
// field failure, or nil when the struct is valid. The AppError code is taken
// from the first failure; all failures appear under the "validation_errors"
// details key.
func (v *Validator) ValidateStruct(s any) error {
	errs := v.fieldErrors(s)
	if len(errs) == 0 {
		return nil
	}

	return types.NewAppErrorWithDetails(
		types.ErrorCode(errs[0].Code),
		"request validation failed",
		nil,
		map[string]any{"validation_errors": errs},
	)
}

// ValidateStructWithWarnings validates s and additionally collects any
// non-blocking warnings the request type declares via the Warner interface.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	result := ValidationResult{Errors: v.fieldErrors(s)}
	if w, ok := s.(Warner); ok {
		result.Warnings = w.ValidationWarnings()
	}
	return result
}

// fieldErrors runs the underlying validator and converts its failures to
// ValidationErrors with domain error codes.
func (v *Validator) fieldErrors(s any) []ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the caller passed a non-struct. Treat it as
		// a single generic failure rather than panicking.
		v.logger.Error("validator received non-struct input", "error", err)
		return []ValidationError{{
			Field:   "",
			Code:    string(errCodeValidationInvalidField),
			Message: err.Error(),
		}}
	}

	out := make([]ValidationError, 0, len(vErrs))
	for _, fe := range vErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    string(codeForTag(fe)),
			Message: messageForTag(fe),
		})
	}
	return out
}

// codeForTag maps a validator tag failure onto the platform's error codes.
func codeForTag(fe validator.FieldError) types.ErrorCode {
	switch fe.Tag() {
	case "required":
		return types.ErrCodeValidationMissingField
	case "latitude", "is_conus":
		return types.ErrCodeValidationInvalidLat
	case "longitude":
		return types.ErrCodeValidationInvalidLon
	default:
		return errCodeValidationInvalidField
	}
}

// messageForTag produces a human-readable message for a tag failure.
func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "latitude":
		return "must be a valid latitude between -90 and 90"
	case "longitude":
		return "must be a valid longitude between -180 and 180"
	case "is_conus":
		return "site latitude is outside upstream weather coverage"
	case "is_timezone":
		return "must be a valid IANA timezone identifier"
	case "delay_cause":
		return "must be one of: weather, labor, equipment, other"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	default:
		return "failed validation rule: " + fe.Tag()
	}
}

// validateTimezone checks that the field is a loadable IANA timezone name.
// Empty strings pass so the tag composes with omitempty/required.
func validateTimezone(fl validator.FieldLevel) bool {
	tz := fl.Field().String()
	if tz == "" {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// conusLatMin/Max bound the latitudes served by the upstream provider's
// gridpoint API. Alaska and Hawaii are served through separate offices but
// still fall inside this band's longitude-agnostic check.
const (
	conusLatMin = 15.0
	conusLatMax = 72.0
)

// validateCONUSLat checks that a latitude is inside the provider's coverage.
func validateCONUSLat(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= conusLatMin && lat <= conusLatMax
}

// validateDelayCause checks DelayCause enum membership. Empty strings pass so
// the tag composes with required.
func validateDelayCause(fl validator.FieldLevel) bool {
	switch types.DelayCause(fl.Field().String()) {
	case "":
		return true
	case types.CauseWeather, types.CauseLabor, types.CauseEquipment, types.CauseOther:
		return true
	default:
		return false
	}
}
