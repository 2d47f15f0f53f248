package storage

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/runnerr0/browsedash/internal/errors"
)

// maxReportedRowErrors bounds the details attached to a rejected batch.
const maxReportedRowErrors = 20

// RowError describes one invalid field of one row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// normalizeRow trims text fields and coerces visits. It never fails.
func normalizeRow(r DomainDailyRow) DomainDailyRow {
	r.Day = strings.TrimSpace(r.Day)
	r.Domain = strings.TrimSpace(r.Domain)
	r.LastSeen = strings.TrimSpace(r.LastSeen)
	r.Visits = LooseNumber(coerceVisits(float64(r.Visits)))
	return r
}

// coerceVisits floors v and clamps it to [0, MaxInt32]. NaN becomes 0.
func coerceVisits(v float64) int {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	default:
		return int(math.Floor(v))
	}
}

// validateBatch checks every row and returns a validation error listing the
// first failures, or nil when the whole batch is well formed.
func validateBatch(rows []DomainDailyRow) error {
	var rowErrs []RowError
	failed := 0
	for i, r := range rows {
		err := validate.Struct(r)
		if err == nil {
			continue
		}
		failed++

		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate row %d: %w", i, err)
		}
		for _, fe := range verrs {
			if len(rowErrs) < maxReportedRowErrors {
				rowErrs = append(rowErrs, RowError{Row: i, Field: fe.Field(), Message: friendlyMessage(fe)})
			}
		}
	}
	if failed == 0 {
		return nil
	}
	return apperrors.ValidationWithDetails(fmt.Sprintf("%d of %d rows invalid", failed, len(rows)), rowErrs)
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "datetime":
		if fe.Param() == dayLayout {
			return "must be a YYYY-MM-DD date"
		}
		return "must be an RFC 3339 timestamp"
	default:
		return "is invalid"
	}
}

// formatLastSeen converts a validated RFC 3339 value to the stored layout.
// Empty input stays empty, meaning NULL.
func formatLastSeen(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
