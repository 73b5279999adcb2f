package handlers

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"taskmanager/api/internal/service"
	"taskmanager/api/internal/validation"
)

type envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// failBinding reports request decoding and validation problems as 400 with a
// per-field breakdown when the validator produced one. Bodies cut off by
// middleware.BodyLimit get 413.
func failBinding(c *gin.Context, err error) {
	if bodyTooLarge(err) {
		fail(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{Field: fe.Field(), Message: validationMessage(fe)})
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  out,
	})
}

func bodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Please enter a valid email"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "password":
		return "Password must contain at least one letter and one number"
	case "personname":
		return "Name can only contain letters and spaces"
	default:
		return fe.Field() + " is invalid"
	}
}

// failService maps service error kinds to HTTP responses. Anything that is not
// a known kind is logged and hidden behind a 500.
func (h HandlerSet) failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateEmail):
		fail(c, http.StatusBadRequest, "User with this email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrAccountDeactivated):
		fail(c, http.StatusUnauthorized, "Account is deactivated. Please contact support.")
	case errors.Is(err, service.ErrInvalidRefreshToken):
		fail(c, http.StatusUnauthorized, "Invalid or expired refresh token")
	case errors.Is(err, service.ErrSelfActionForbidden):
		fail(c, http.StatusBadRequest, "You cannot perform this action on your own account")
	case errors.Is(err, service.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, "Not authorized")
	case errors.Is(err, service.ErrForbidden):
		fail(c, http.StatusForbidden, "You do not have permission to perform this action")
	case errors.Is(err, service.ErrNotFound):
		fail(c, http.StatusNotFound, "Resource not found")
	case errors.Is(err, service.ErrInvalidInput):
		fail(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": "))
	case errors.Is(err, service.ErrAssistantNotConfigured):
		fail(c, http.StatusBadRequest, "AI assistant is not configured. Set llm.apikey to enable it.")
	case errors.Is(err, service.ErrAssistantUnavailable):
		h.log.Warn().Err(err).Msg("assistant call failed")
		fail(c, http.StatusServiceUnavailable, "AI service temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("store timeout")
		fail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = validation.Register(v)
}
