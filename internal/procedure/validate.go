package procedure

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

// OutputError reports that a handler returned a value that does not match
// its declared output shape.
type OutputError struct {
	Procedure string
	Fields    map[string]string
	Err       error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("procedure %s: output shape: %v", e.Procedure, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// checkShape validates v and anything it points to or contains. Values that
// are not structs (strings, bools) have no declared rules.
func checkShape(v *validator.Validate, value any) (map[string]string, error) {
	return checkValue(v, reflect.ValueOf(value), "")
}

func checkValue(v *validator.Validate, rv reflect.Value, prefix string) (map[string]string, error) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		err := v.Struct(rv.Interface())
		if err == nil {
			return nil, nil
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[prefix+fieldPath(fe)] = fe.Tag()
		}
		return fields, err
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if fields, err := checkValue(v, rv.Index(i), fmt.Sprintf("%s[%d].", prefix, i)); err != nil {
				return fields, err
			}
		}
	}
	return nil, nil
}

// fieldPath drops the top-level type name from the validator namespace:
// "CreateTodoRequest.title" becomes "title".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func inputError(fields map[string]string, err error) error {
	if fields == nil {
		return domain.Wrap(domain.KindBadRequest, "input validation failed", err)
	}
	return domain.ErrInvalidInput("input validation failed", fields)
}
