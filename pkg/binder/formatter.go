package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min", "gte":
		return bound(err, "greater than or equal to")
	case "max", "lte":
		return bound(err, "less than or equal to")
	case "gt":
		return bound(err, "greater than")
	case "lt":
		return bound(err, "less than")
	case "ne":
		return fmt.Sprintf("%q can't be %q", field, err.Param())
	case "oneof":
		quoted := strings.Fields(err.Param())
		for i, p := range quoted {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		return fmt.Sprintf("%q must be one of the following: %s", field, strings.Join(quoted, ", "))
	default:
		return fmt.Sprintf("%q failed the %q check", field, err.Tag())
	}
}

// bound formats a comparison check. Numbers are compared by value; strings
// and slices by length.
func bound(err validator.FieldError, relation string) string {
	field, param := err.Field(), err.Param()

	var unit string
	//exhaustive:ignore
	switch err.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%q must be %s %s", field, relation, param)
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = "element"
	default:
		unit = "character"
	}
	if param != "1" {
		unit += "s"
	}
	return fmt.Sprintf("%q length must be %s %s %s", field, relation, param, unit)
}
