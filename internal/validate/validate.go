// Package validate checks form input against pipe-separated rule strings
// such as "required|max:120".
package validate

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Input is satisfied by url.Values.
type Input interface {
	Get(key string) string
}

// Rules maps a field name to its rule string.
type Rules map[string]string

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator accumulates per-field messages across Check calls.
type Validator struct {
	errors map[string][]string
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{errors: make(map[string][]string)}
}

// Check applies rules to input and reports whether every rule passed.
// Optional fields that are empty skip their remaining rules.
func (v *Validator) Check(input Input, rules Rules) bool {
	fields := make([]string, 0, len(rules))
	for field := range rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	ok := true
	for _, field := range fields {
		value := strings.TrimSpace(input.Get(field))
		for _, rule := range strings.Split(rules[field], "|") {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			name, arg, _ := strings.Cut(rule, ":")
			if name != "required" && value == "" {
				break
			}
			if msg := v.apply(input, field, value, name, arg); msg != "" {
				v.Add(field, msg)
				ok = false
				if name == "required" {
					break
				}
			}
		}
	}
	return ok
}

func (v *Validator) apply(input Input, field, value, rule, arg string) string {
	label := Label(field)
	switch rule {
	case "required":
		if value == "" {
			return label + " is required"
		}
	case "min":
		n, _ := strconv.Atoi(arg)
		if utf8.RuneCountInString(value) < n {
			return fmt.Sprintf("%s must be at least %d characters", label, n)
		}
	case "max":
		n, _ := strconv.Atoi(arg)
		if utf8.RuneCountInString(value) > n {
			return fmt.Sprintf("%s must be at most %d characters", label, n)
		}
	case "email":
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return label + " must be a valid email address"
		}
	case "numeric":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return label + " must be a number"
		}
	case "integer":
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return label + " must be a whole number"
		}
	case "in":
		if !slices.Contains(strings.Split(arg, ","), value) {
			return fmt.Sprintf("%s must be one of %s", label, strings.ReplaceAll(arg, ",", ", "))
		}
	case "matches":
		if value != strings.TrimSpace(input.Get(arg)) {
			return fmt.Sprintf("%s must match %s", label, Label(arg))
		}
	case "slug":
		if !slugPattern.MatchString(value) {
			return label + " may only contain lowercase letters, digits and single dashes"
		}
	default:
		return fmt.Sprintf("%s has unknown rule %q", label, rule)
	}
	return ""
}

// Add records a message for field.
func (v *Validator) Add(field, msg string) {
	v.errors[field] = append(v.errors[field], msg)
}

// Valid reports whether no messages were recorded.
func (v *Validator) Valid() bool { return len(v.errors) == 0 }

// Errors returns the recorded messages keyed by field.
func (v *Validator) Errors() map[string][]string { return v.errors }

// Messages flattens every message in field order.
func (v *Validator) Messages() []string {
	fields := make([]string, 0, len(v.errors))
	for f := range v.errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var out []string
	for _, f := range fields {
		out = append(out, v.errors[f]...)
	}
	return out
}

// ErrorsJSON encodes Errors as a JSON object.
func (v *Validator) ErrorsJSON() string {
	data, err := json.Marshal(v.errors)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeErrors parses the output of ErrorsJSON. Plain strings come back as a
// single anonymous message.
func DecodeErrors(raw string) []string {
	if raw == "" {
		return nil
	}
	var byField map[string][]string
	if err := json.Unmarshal([]byte(raw), &byField); err != nil {
		return []string{raw}
	}
	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var out []string
	for _, f := range fields {
		out = append(out, byField[f]...)
	}
	return out
}

// Label turns a field name like "password_confirm" into "Password Confirm".
// A Caser keeps state between calls, so each call gets its own.
func Label(field string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(field, "_", " "))
}
