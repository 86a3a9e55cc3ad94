package record

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, field := range names {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMalformedRecord
}

// Validate checks that a record carries a key and a title. Field lengths are
// bounded only by the reader's line limit; DBLP entries with thousands of
// authors are valid.
func Validate(r *Record) error {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Key) == "" {
		errs["key"] = "key is required"
	}
	if strings.TrimSpace(r.Title) == "" {
		errs["title"] = "title is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
