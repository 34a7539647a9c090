package errcodes

import (
	"fmt"
	"net/http"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		http.StatusNotFound,
		resource + " not found.",
		"not_found",
	}
}

// BadRequest returns a 400 error with the given message.
func BadRequest(msg string) error {
	return &Error{
		http.StatusBadRequest,
		msg,
		"bad_request",
	}
}

// NoReadablePages is returned when a chapter extracted fine but holds no
// page that can be shown.
func NoReadablePages() error {
	return &Error{
		http.StatusBadRequest,
		"No readable pages",
		"no_readable_pages",
	}
}

// ExtractionFailed is returned when a chapter could not be extracted.
func ExtractionFailed() error {
	return &Error{
		http.StatusInternalServerError,
		"Could not extract chapter",
		"extraction_failed",
	}
}

// PageMissing is returned when a cached page vanished from disk.
func PageMissing() error {
	return &Error{
		http.StatusInternalServerError,
		"Could not find cached image",
		"page_missing",
	}
}

func UnsupportedMediaType() error {
	return &Error{
		http.StatusUnsupportedMediaType,
		"Unsupported Media Type",
		"unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		fmt.Sprintf("Unknown Parameter %q", param),
		"unknown_parameter",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_error",
	}
}

func MalformedPayload() error {
	return &Error{
		http.StatusBadRequest,
		"Malformed Payload",
		"malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		http.StatusBadRequest,
		"Request body can't be empty.",
		"empty_request_body",
	}
}
