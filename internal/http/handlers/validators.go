package handlers

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const passwordSpecials = "@$!%*?&+"

var validatorsOnce sync.Once

// ensureValidators registers the custom rules on gin's validator engine and
// makes it report fields by their wire names.
func ensureValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(wireName)
		_ = v.RegisterValidation("strongpassword", strongPassword)
		_ = v.RegisterValidation("personname", personName)
	})
}

// wireName is the json name of a field, else its form name, else the Go name.
func wireName(sf reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(sf.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return sf.Name
}

// strongPassword wants at least one lower, upper, digit and special, and
// nothing outside those classes.
func strongPassword(fl validator.FieldLevel) bool {
	var lower, upper, digit, special bool

	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}

	return lower && upper && digit && special
}

func personName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}

	for _, r := range s {
		isASCIILetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isASCIILetter && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
