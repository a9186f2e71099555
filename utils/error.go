package utils

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidState is returned when an operation is not allowed for the
// resource's current status (e.g. confirming a cancelled purchase order).
var ErrorInvalidState = errors.New("invalid state for this operation")

// ErrorInsufficientStock is returned when a consumption request exceeds the
// total active grams available for a product. No partial consumption happens.
var ErrorInsufficientStock = errors.New("insufficient stock")

var ErrorDuplicateRecord = errors.New("duplicate record")

// ValidationError carries a field-level message for 422 responses.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsDuplicateEntryError reports whether err is a MySQL 1062 duplicate-key
// violation, e.g. two instances racing on the same order number.
func IsDuplicateEntryError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
