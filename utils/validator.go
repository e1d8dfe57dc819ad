package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
)

// Minimal internal validator to avoid external dependency. Supports:
// - required
// - username (letters, numbers, dot, underscore, 3-50 chars)
// - nameok (letters, numbers, space, hyphen, apostrophe, 1-100 chars)
// - pwdmin (min length 6)
// - hhmm (24h time-of-day, e.g. 09:00)
// - pattern (daily|weekly|monthly)
// - scope (single|series)

var (
	reUsername = regexp.MustCompile(`^[A-Za-z0-9._]{3,50}$`)
	reNameOK   = regexp.MustCompile(`^[A-Za-z0-9 \-']{1,100}$`)
	reHHMM     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// ValidateStruct inspects struct tags `validate:"..."` and returns the first error encountered.
func ValidateStruct(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.New("ValidateStruct expects a struct or pointer to struct")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		fv := v.Field(i)
		var sval string
		if fv.IsValid() && fv.Kind() == reflect.String {
			sval = fv.String()
		}
		for _, p := range parts {
			p = strings.TrimSpace(p)
			switch {
			case p == "required":
				if sval == "" {
					return errors.New(field.Name + " is required")
				}
			case p == "username":
				if sval != "" && !reUsername.MatchString(sval) {
					return errors.New(field.Name + " must be 3-50 letters, digits, dots or underscores")
				}
			case p == "nameok":
				if sval != "" && !reNameOK.MatchString(sval) {
					return errors.New(field.Name + " contains invalid characters")
				}
			case p == "pwdmin":
				if len(sval) < 6 {
					return errors.New(field.Name + " must be at least 6 characters")
				}
			case p == "hhmm":
				if sval != "" && !reHHMM.MatchString(sval) {
					return errors.New(field.Name + " must be a time of day like 09:00")
				}
			case p == "pattern":
				if sval != "" && sval != "daily" && sval != "weekly" && sval != "monthly" {
					return errors.New(field.Name + " must be daily, weekly or monthly")
				}
			case p == "scope":
				if sval != "" && sval != "single" && sval != "series" {
					return errors.New(field.Name + " must be single or series")
				}
			}
		}
	}
	return nil
}
