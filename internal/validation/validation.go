package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"circuitvc/internal/errors"
	"circuitvc/internal/triple"
)

// MaxNameLength bounds repository, branch and tag names, in runes.
const MaxNameLength = 256

type Validator interface {
	Validate() error
}

// DecodeRequest reads a JSON body into v and validates it.
func DecodeRequest(r *http.Request, v Validator) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.ValidationError("invalid request body", err.Error())
	}
	return v.Validate()
}

// Name checks a repository, branch or tag name. Names are free text but
// must be non-empty, trimmed and printable.
func Name(kind, name string) error {
	if name == "" {
		return errors.ValidationError(kind+" name is required", nil)
	}
	if !utf8.ValidString(name) {
		return errors.ValidationError(kind+" name is not valid UTF-8", nil)
	}
	if strings.TrimSpace(name) != name {
		return errors.ValidationError(fmt.Sprintf("%s name %q has surrounding whitespace", kind, name), nil)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return errors.ValidationError(fmt.Sprintf("%s name is longer than %d characters", kind, MaxNameLength), nil)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.ValidationError(fmt.Sprintf("%s name %q contains control characters", kind, name), nil)
		}
	}
	return nil
}

// Statements checks that every statement would survive an N-Triples round
// trip. The offending statements are returned as details.
func Statements(field string, stmts []triple.Statement) error {
	var bad []string
	for _, st := range stmts {
		parsed, ok, err := triple.ParseLine(triple.FormatLine(st))
		if err != nil || !ok || parsed != st {
			bad = append(bad, st.String())
		}
	}
	if len(bad) > 0 {
		return errors.ValidationError(fmt.Sprintf("%s: %d malformed statements", field, len(bad)), bad)
	}
	return nil
}
