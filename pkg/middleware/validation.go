package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/ecocycle/collection-service/pkg/errors"
)

// Rule is a custom binding tag and the message reported when it fails
type Rule struct {
	Check   validator.Func
	Message string
}

var (
	validatorOnce sync.Once
	ruleMessages  = map[string]string{}
)

var builtinMessages = map[string]func(param string) string{
	"required":    func(string) string { return "is required" },
	"min":         func(p string) string { return "must be at least " + p },
	"max":         func(p string) string { return "must be at most " + p },
	"gte":         func(p string) string { return "must be greater than or equal to " + p },
	"gt":          func(p string) string { return "must be greater than " + p },
	"oneof":       func(p string) string { return "must be one of: " + strings.ReplaceAll(p, " ", ", ") },
	"safe_string": func(string) string { return "contains invalid characters" },
}

// InitValidator registers rules on gin's binding engine and makes field
// errors use JSON names. Only the first call has an effect, since the
// engine is process-wide.
func InitValidator(rules map[string]Rule) {
	validatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		_ = v.RegisterValidation("safe_string", func(fl validator.FieldLevel) bool {
			return !strings.ContainsRune(fl.Field().String(), '\x00')
		})
		for tag, rule := range rules {
			_ = v.RegisterValidation(tag, rule.Check)
			ruleMessages[tag] = rule.Message
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
}

// FieldErrors maps each failing JSON field to a readable message
func FieldErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return nil
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fe.Field()] = describe(fe)
	}
	return fields
}

func describe(fe validator.FieldError) string {
	if msg, ok := ruleMessages[fe.Tag()]; ok && msg != "" {
		return msg
	}
	if format, ok := builtinMessages[fe.Tag()]; ok {
		return format(fe.Param())
	}
	return "is invalid"
}

// BindAndValidate decodes the JSON body into obj. Tag failures become a
// VALIDATION_ERROR with per-field details; malformed JSON is a BAD_REQUEST.
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return nil
	}
	if fields := FieldErrors(err); len(fields) > 0 {
		return errors.ErrValidationWithFields("validation failed", fields)
	}
	return errors.ErrBadRequest("invalid request body: " + err.Error())
}

// ContentType rejects non-JSON bodies on mutating requests
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > 0 && !strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") {
				AbortWithAppError(c, errors.New(errors.CodeInvalidContentType, "Content-Type must be application/json"))
				return
			}
		}
		c.Next()
	}
}
