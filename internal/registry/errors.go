package registry

import "errors"

// ValidationError reports that a request failed a constraint on a single
// field. Field carries the wire-level field name ("name", "id", "key",
// "device_id", "type", "value") and is what the message router reports
// back to the requester as {success:false, error:<field>}.
//
// Lookups that fail to resolve an id or key are reported the same way,
// under the field that carried the reference.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "registry: validation failed on field " + e.Field
}

// errField builds a ValidationError for the given wire field.
func errField(field string) error {
	return &ValidationError{Field: field}
}

// FieldOf extracts the failing field name from an error returned by the
// registry. It returns "" when err is not a ValidationError.
func FieldOf(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Field
	}
	return ""
}
