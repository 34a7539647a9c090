package binder

import (
	"reflect"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/stretchr/testify/assert"
)

type fieldError struct {
	tag   string
	param string
	kind  reflect.Kind
}

func (e fieldError) Error() string                    { return e.tag }
func (e fieldError) Tag() string                      { return e.tag }
func (e fieldError) ActualTag() string                { return e.tag }
func (e fieldError) Namespace() string                { return "" }
func (e fieldError) StructNamespace() string          { return "" }
func (e fieldError) Field() string                    { return "page" }
func (e fieldError) StructField() string              { return "Page" }
func (e fieldError) Value() interface{}               { return nil }
func (e fieldError) Param() string                    { return e.param }
func (e fieldError) Kind() reflect.Kind               { return e.kind }
func (e fieldError) Type() reflect.Type               { return nil }
func (e fieldError) Translate(_ ut.Translator) string { return "" }

func TestFormatValidationError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err fieldError
		msg string
	}{
		{fieldError{"required", "", reflect.Int}, `"page" is required`},
		{fieldError{"min", "0", reflect.Int}, `"page" must be greater than or equal to 0`},
		{fieldError{"gte", "1", reflect.Int64}, `"page" must be greater than or equal to 1`},
		{fieldError{"max", "65535", reflect.Uint16}, `"page" must be less than or equal to 65535`},
		{fieldError{"gt", "0", reflect.Float64}, `"page" must be greater than 0`},
		{fieldError{"lt", "10", reflect.Int}, `"page" must be less than 10`},
		{fieldError{"max", "1", reflect.String}, `"page" length must be less than or equal to 1 character`},
		{fieldError{"min", "3", reflect.String}, `"page" length must be greater than or equal to 3 characters`},
		{fieldError{"max", "5", reflect.Slice}, `"page" length must be less than or equal to 5 elements`},
		{fieldError{"min", "1", reflect.Slice}, `"page" length must be greater than or equal to 1 element`},
		{fieldError{"ne", "0", reflect.Int}, `"page" can't be "0"`},
		{fieldError{"oneof", "zip rar 7z", reflect.String}, `"page" must be one of the following: "zip", "rar", "7z"`},
		{fieldError{"unique", "", reflect.Slice}, `"page" failed the "unique" check`},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.msg, formatValidationError(tt.err), tt.err.tag)
	}
}
