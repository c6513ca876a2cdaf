package openapi

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

// RequestValidation answers 400 VALIDATION_ERROR, with the offending fields
// as details, for requests that break the document. Routes it does not
// describe pass through so gin can answer them.
func RequestValidation(v *Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Documents(c.Request) {
			c.Next()
			return
		}

		err := v.ValidateRequest(c.Request)
		if err == nil {
			c.Next()
			return
		}

		var contractErr *ContractError
		if stderrors.As(err, &contractErr) {
			middleware.AbortWithAppError(c, errors.ErrValidationWithFields("request does not match the API contract", contractErr.Fields))
			return
		}
		middleware.AbortWithAppError(c, errors.ErrValidation(err.Error()))
	}
}
