package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/zhejian/glasslink/internal/service"
)

var validatorsOnce sync.Once

// registerValidators adds the custom tags used in model binding rules and
// reports fields by their JSON names.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		// A blank code means "generate one", so only non-blank values are checked.
		_ = v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
			code := service.NormalizeCode(fl.Field().String())
			return code == "" || service.IsValidCode(code)
		})
		_ = v.RegisterValidation("notreserved", func(fl validator.FieldLevel) bool {
			return !service.IsReservedCode(service.NormalizeCode(fl.Field().String()))
		})
		_ = v.RegisterValidation("hasdigit", func(fl validator.FieldLevel) bool {
			return strings.IndexFunc(fl.Field().String(), unicode.IsDigit) >= 0
		})
	})
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fieldErrors turns a binding error into a field -> message map.
func fieldErrors(err error) map[string]string {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make(map[string]string, len(ves))
		for _, fe := range ves {
			if _, dup := out[fe.Field()]; !dup {
				out[fe.Field()] = fieldMessage(fe)
			}
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return map[string]string{typeErr.Field: "Value has the wrong type."}
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return map[string]string{"expiresAt": "Must be an RFC 3339 timestamp."}
	}
	return map[string]string{"body": "Request body is malformed."}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "email":
		return "Must be a valid email address."
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", fe.Param())
	case "shortcode":
		return fmt.Sprintf("Custom code must be %d-%d letters or digits.", service.MinCodeLength, service.MaxCodeLength)
	case "notreserved":
		return "Custom code is reserved."
	case "hasdigit":
		return "Must contain at least one digit."
	}
	return fmt.Sprintf("Failed the %s rule.", fe.Tag())
}
