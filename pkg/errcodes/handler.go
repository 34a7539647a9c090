package errcodes

import (
	"fmt"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
	golog "github.com/robinjoseph08/golib/logger"
)

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is the echo HTTPErrorHandler. Custom and echo errors keep their
// status code; anything else becomes a 500.
func (h *Handler) Handle(err error, c echo.Context) {
	log := logger.FromEchoContext(c)

	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("client went away")
		return
	}
	if c.Response().Committed {
		log.Err(err).Warn("error after response was committed")
		return
	}

	body := toBody(err)
	if body.StatusCode >= http.StatusInternalServerError {
		log.Err(err).Error("server error", golog.Data{"code": body.Code})
	}

	if err := c.JSON(body.StatusCode, errorResponse{Error: body}); err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func toBody(err error) errorBody {
	var e *Error
	if errors.As(err, &e) {
		return errorBody{Code: e.Code, Message: e.Message, StatusCode: e.HTTPCode}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		msg, ok := he.Message.(string)
		if !ok {
			msg = fmt.Sprint(he.Message)
		}
		return errorBody{Code: strcase.ToSnake(msg), Message: msg, StatusCode: he.Code}
	}

	return errorBody{
		Code:       "internal_server_error",
		Message:    "Internal Server Error",
		StatusCode: http.StatusInternalServerError,
	}
}
