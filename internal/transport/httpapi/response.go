package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	errx "github.com/pricewatch/intake-core/internal/core/error"
)

// ErrorResponse is the error payload of every endpoint.
type ErrorResponse struct {
	Kind    errx.Kind         `json:"kind"`
	Error   string            `json:"error"`
	Fields  []errx.FieldError `json:"fields,omitempty"`
	Session *SessionResponse  `json:"session,omitempty"`
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// appError normalizes err into an AppError; unknown errors become internal.
func appError(err error) *errx.AppError {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errx.New(err, http.StatusInternalServerError, "internal error")
}

// HandleError writes err and reports whether there was one.
func HandleError(c *gin.Context, err error) bool {
	return handleErrorWithSession(c, err, nil)
}

func handleErrorWithSession(c *gin.Context, err error, session *SessionResponse) bool {
	if err == nil {
		return false
	}
	appErr := appError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(appErr.Status, ErrorResponse{
		Kind:    appErr.Kind,
		Error:   appErr.Message,
		Fields:  appErr.Fields,
		Session: session,
	})
	return true
}

// bindError turns a request binding failure into a validation error.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errx.Validation("invalid request body")
	}
	fields := make([]errx.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errx.FieldError{Field: fe.Field(), Message: "is " + fe.Tag()})
	}
	return errx.Validation("invalid request body", fields...)
}
