package binder

import (
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/segmentio/encoding/json"
	"github.com/tankobon/tankobon/pkg/errcodes"
)

var unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)

// nameTags are checked in order when a validation error names a field.
var nameTags = []string{"json", "query", "param"}

// Binder implements echo.Binder. Path parameters are decoded into `param`
// tags, query strings into `query` tags and JSON bodies into `json` tags.
// The result is cleaned with mold, defaulted and then validated.
type Binder struct {
	paramDecoder *schema.Decoder
	queryDecoder *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

// New initializes a new Binder.
func New() (*Binder, error) {
	paramDecoder := schema.NewDecoder()
	paramDecoder.SetAliasTag("param")
	paramDecoder.IgnoreUnknownKeys(true)
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range nameTags {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &Binder{paramDecoder, queryDecoder, modifiers.New(), validate}, nil
}

// Bind binds, modifies, and validates a request against the given struct.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	if err := b.bindParams(i, c); err != nil {
		return err
	}

	if err := b.decode(i, c.QueryParams(), b.queryDecoder); err != nil {
		return err
	}

	if req.ContentLength > 0 {
		if err := b.bindBody(i, c); err != nil {
			return err
		}
	} else if requiresBody(c) {
		return errcodes.EmptyRequestBody()
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	if err := b.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return errors.WithStack(err)
		}
		return errcodes.ValidationError(formatValidationError(errs[0]))
	}
	return nil
}

func (b *Binder) bindParams(i interface{}, c echo.Context) error {
	names := c.ParamNames()
	if len(names) == 0 {
		return nil
	}
	values := url.Values{}
	for idx, name := range names {
		values.Set(name, c.ParamValues()[idx])
	}
	return b.decode(i, values, b.paramDecoder)
}

func (b *Binder) bindBody(i interface{}, c echo.Context) error {
	req := c.Request()
	ctype := req.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ctype, echo.MIMEApplicationJSON) {
		return errcodes.UnsupportedMediaType()
	}

	defer req.Body.Close()
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(i); err != nil {
		if matches := unknownFieldsRE.FindStringSubmatch(err.Error()); len(matches) > 1 {
			return errcodes.UnknownParameter(matches[1])
		}

		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr))
		}

		logger.FromEchoContext(c).Err(err).Error("unknown json decode error")
		return errcodes.MalformedPayload()
	}
	return nil
}

func (b *Binder) decode(i interface{}, values url.Values, decoder *schema.Decoder) error {
	if len(values) == 0 {
		return nil
	}
	err := decoder.Decode(i, values)
	if err == nil {
		return nil
	}

	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return errors.WithStack(err)
	}
	for _, e := range multi {
		var conv schema.ConversionError
		if errors.As(e, &conv) {
			return errcodes.ValidationTypeError(formatSchemaConversionError(conv))
		}
		var unknown schema.UnknownKeyError
		if errors.As(e, &unknown) {
			return errcodes.UnknownParameter(unknown.Key)
		}
		return errors.WithStack(e)
	}
	return nil
}

// requiresBody reports whether an empty body should be rejected. Routes that
// take all of their input from the path and query opt out by setting
// "allow_empty_body".
func requiresBody(c echo.Context) bool {
	if allow, ok := c.Get("allow_empty_body").(bool); ok && allow {
		return false
	}
	switch c.Request().Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
