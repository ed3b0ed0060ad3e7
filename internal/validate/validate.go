// Package validate applies W-2 structural rules to extracted candidates.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/extract"
)

// Reason says why a field was rejected.
type Reason string

const (
	ReasonMissing    Reason = "missing"
	ReasonMalformed  Reason = "malformed"
	ReasonOutOfRange Reason = "out_of_range"
)

// FieldError is the first rule violation found.
type FieldError struct {
	Field   constants.FieldName
	Reason  Reason
	Value   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Reason == ReasonMissing {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
}

// Code maps the reason to the envelope error code.
func (e *FieldError) Code() string {
	if e.Reason == ReasonMissing {
		return constants.CodeFieldMissing
	}
	return constants.CodeFieldInvalid
}

// Rules holds the configurable parts of the rule set.
type Rules struct {
	// ReservedEINPrefixes are digit prefixes no valid EIN starts with.
	ReservedEINPrefixes []string
}

// DefaultRules rejects EINs starting with 9.
func DefaultRules() Rules {
	return Rules{ReservedEINPrefixes: []string{"9"}}
}

var (
	reEIN   = regexp.MustCompile(`^\d{2}-\d{7}$`)
	reSSN   = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	reMoney = regexp.MustCompile(`^\d+\.\d{2}$`)
)

// rule checks one field value; nil means the value passed.
type rule func(field constants.FieldName, value string) *FieldError

type Validator struct {
	rules map[constants.FieldName][]rule
}

func NewValidator(r Rules) *Validator {
	if len(r.ReservedEINPrefixes) == 0 {
		r = DefaultRules()
	}
	return &Validator{
		rules: map[constants.FieldName][]rule{
			constants.FieldEmployerID:   {shape(reEIN, "must have the form DD-DDDDDDD"), reservedPrefix(r.ReservedEINPrefixes)},
			constants.FieldTaxpayerID:   {shape(reSSN, "must have the form DDD-DD-DDDD"), ssnRanges},
			constants.FieldWages:        {shape(reMoney, "must be a non-negative amount with two decimals")},
			constants.FieldFederalTaxWH: {shape(reMoney, "must be a non-negative amount with two decimals")},
		},
	}
}

// Validate checks the fields in constants.Fields order and stops at the
// first violation. Wages and withheld tax are not compared with each other.
func (v *Validator) Validate(c extract.Candidates) (entity.ExtractedFields, error) {
	for _, field := range constants.Fields {
		cand, ok := c[field]
		if !ok || strings.TrimSpace(cand.Value) == "" {
			return entity.ExtractedFields{}, &FieldError{Field: field, Reason: ReasonMissing, Message: "could not be extracted"}
		}
		for _, r := range v.rules[field] {
			if err := r(field, cand.Value); err != nil {
				return entity.ExtractedFields{}, err
			}
		}
	}
	return entity.ExtractedFields{
		EmployerIDNumber:   c[constants.FieldEmployerID].Value,
		TaxpayerIDNumber:   c[constants.FieldTaxpayerID].Value,
		Wages:              c[constants.FieldWages].Value,
		FederalTaxWithheld: c[constants.FieldFederalTaxWH].Value,
	}, nil
}

func shape(re *regexp.Regexp, msg string) rule {
	return func(field constants.FieldName, value string) *FieldError {
		if !re.MatchString(value) {
			return &FieldError{Field: field, Reason: ReasonMalformed, Value: value, Message: msg}
		}
		return nil
	}
}

func reservedPrefix(prefixes []string) rule {
	return func(field constants.FieldName, value string) *FieldError {
		digits := strings.ReplaceAll(value, "-", "")
		for _, p := range prefixes {
			if strings.HasPrefix(digits, p) {
				return &FieldError{
					Field:   field,
					Reason:  ReasonOutOfRange,
					Value:   value,
					Message: fmt.Sprintf("must not start with reserved prefix %s", p),
				}
			}
		}
		return nil
	}
}

// ssnRanges rejects area 000, 666 and 900-999, group 00 and serial 0000.
// Runs after the shape rule, so the slicing is safe.
func ssnRanges(field constants.FieldName, value string) *FieldError {
	area, group, serial := value[0:3], value[4:6], value[7:11]
	out := func(msg string) *FieldError {
		return &FieldError{Field: field, Reason: ReasonOutOfRange, Value: value, Message: msg}
	}
	switch {
	case area == "000":
		return out("area number must not be 000")
	case area == "666":
		return out("area number must not be 666")
	case area[0] == '9':
		return out("area number must not be in 900-999")
	case group == "00":
		return out("group number must not be 00")
	case serial == "0000":
		return out("serial number must not be 0000")
	}
	return nil
}
