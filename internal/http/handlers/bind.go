package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/geocoder89/taskhub/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError = apperr.FieldError

// Normalizer is implemented by request bodies that clean their input (trim,
// lower-case) before validation runs.
type Normalizer interface {
	Normalize()
}

var errEmptyBody = errors.New("empty request body")

// BindJSON decodes the body into out, normalizes it and validates the binding
// tags. On failure it writes a 400 and returns false.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	ensureValidators()

	err := decodeJSON(ctx.Request, out)
	if err == nil {
		if n, ok := out.(Normalizer); ok {
			n.Normalize()
		}
		err = binding.Validator.ValidateStruct(out)
	}

	if err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err))
		return false
	}

	return true
}

// BindQuery binds and validates query string parameters.
func BindQuery(ctx *gin.Context, out interface{}) bool {
	ensureValidators()

	if err := ctx.ShouldBindQuery(out); err != nil {
		RespondBadRequest(ctx, "Invalid query parameters", bindErrorDetails(err))
		return false
	}

	return true
}

func decodeJSON(req *http.Request, out interface{}) error {
	if req == nil || req.Body == nil {
		return errEmptyBody
	}

	err := json.NewDecoder(req.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

// bindErrorDetails turns a decode or validation failure into the "details"
// object of the error envelope.
func bindErrorDetails(err error) gin.H {
	var (
		verrs     validator.ValidationErrors
		tooLarge  *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		parseErr  *time.ParseError
	)

	switch {
	case errors.As(err, &verrs):
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   fieldPath(fe),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}

	case errors.Is(err, errEmptyBody):
		return gin.H{"json": "empty_body"}

	case errors.As(err, &tooLarge):
		return gin.H{"json": "body_too_large"}

	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return gin.H{"json": "invalid_json_syntax"}

	case errors.As(err, &typeErr):
		// encoding/json reports the full dotted json path
		field := strings.TrimSpace(typeErr.Field)
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: typeMessage(typeErr.Type),
			}},
		}

	case errors.As(err, &parseErr):
		return gin.H{
			"json": "invalid_json_type",
			"fields": []FieldError{{
				Rule:    "type",
				Message: "must be an RFC3339 timestamp",
			}},
		}
	}

	return gin.H{"json": "invalid_json"}
}

type formatHinter interface {
	FormatHint() string
}

func typeMessage(t reflect.Type) string {
	if t == nil {
		return "has the wrong type"
	}
	if h, ok := reflect.Zero(t).Interface().(formatHinter); ok {
		return "must be " + h.FormatHint()
	}
	return "must be of type " + t.String()
}

// fieldPath drops the root struct name from the namespace, e.g.
// "CreateTaskRequest.subTasks[0].title" becomes "subTasks[0].title".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok && rest != "" {
		return rest
	}
	return fe.Field()
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "datetime":
		return "must be a date in " + param + " format"
	case "strongpassword":
		return "must contain upper and lower case letters, a digit and one of " + passwordSpecials + ", with no other characters"
	case "personname":
		return "must contain only letters and spaces"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
