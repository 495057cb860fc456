package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/pkg/dtw"
)

var ErrInvalidRequest = errors.New("invalid request")

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

type invalidRequestError struct {
	param string
	msg   string
}

func (e *invalidRequestError) Error() string {
	if e.param == "" {
		return e.msg
	}
	return e.param + ": " + e.msg
}

func (e *invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, format string, args ...any) error {
	return &invalidRequestError{param: param, msg: fmt.Sprintf(format, args...)}
}

// validationError converts the first failed validator rule into an
// invalid request naming the JSON field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return newInvalidRequest("", "%v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return newInvalidRequest(fe.Field(), "is required")
	case "min":
		return newInvalidRequest(fe.Field(), "must be at least %s", fe.Param())
	case "oneof":
		return newInvalidRequest(fe.Field(), "must be one of %s", fe.Param())
	case "uuid4":
		return newInvalidRequest(fe.Field(), "must be an alignment id")
	default:
		return newInvalidRequest(fe.Field(), "failed %q validation", fe.Tag())
	}
}

// alignStatus maps an alignment failure to an HTTP status and error type.
func alignStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, dtw.ErrDimensionMismatch),
		errors.Is(err, dtw.ErrInvalidBox),
		errors.Is(err, dtw.ErrInvalidSnapshot),
		errors.Is(err, cloud.ErrEmpty),
		errors.Is(err, cloud.ErrRagged):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, dtw.ErrAllocation):
		return http.StatusInsufficientStorage, "device_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
