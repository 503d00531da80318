package handler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Validator collects request validation errors
type Validator struct {
	errors []string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// RequireNonEmpty validates that a string field is not blank
func (v *Validator) RequireNonEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequireOneOf validates value against allowed; empty means the default and passes
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" || slices.Contains(allowed, value) {
		return
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// RequireIndex parses value as an index in [0, n) and returns it
func (v *Validator) RequireIndex(field, value string, n int) int {
	if value == "" {
		return 0
	}
	i, err := strconv.Atoi(value)
	if err != nil || i < 0 || i >= n {
		v.errors = append(v.errors, fmt.Sprintf("%s must be between 0 and %d", field, n-1))
		return 0
	}
	return i
}

// Check records err under field when it is not nil
func (v *Validator) Check(field string, err error) {
	if err != nil {
		v.errors = append(v.errors, fmt.Sprintf("%s: %v", field, err))
	}
}

// IsValid returns true if there are no validation errors
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []string {
	return v.errors
}

// Error returns a single string with all errors
func (v *Validator) Error() string {
	return strings.Join(v.errors, "; ")
}
