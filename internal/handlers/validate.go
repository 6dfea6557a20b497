package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"slices"

	"expense-approvals/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// decimal.Decimal validates as a number so gt=0 works on amounts
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Report field errors by form field name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return f.Name
	})

	mustRegister(v, "category", func(fl validator.FieldLevel) bool {
		return models.KnownCategory(fl.Field().String())
	})
	mustRegister(v, "currency", func(fl validator.FieldLevel) bool {
		return models.Currency(fl.Field().String()).Valid()
	})
	mustRegister(v, "department", func(fl validator.FieldLevel) bool {
		return slices.Contains(models.Departments, fl.Field().String())
	})
	mustRegister(v, "role", func(fl validator.FieldLevel) bool {
		return models.Role(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// checkForm runs the validator tags of form. It writes a 422 with the failing
// fields and returns false when form is invalid.
func (h *Handlers) checkForm(w http.ResponseWriter, form any) bool {
	err := validate.Struct(form)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.log.Error().Err(err).Msg("validate form")
		h.render(w, http.StatusInternalServerError, apiError{Detail: "Internal server error"})
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	h.render(w, http.StatusUnprocessableEntity, validationError{Detail: "Validation failed", Fields: fields})
	return false
}

// optional returns a pointer to the submitted value of field, or nil when
// the field is missing or blank.
func optional(r *http.Request, field string) *string {
	v := r.PostFormValue(field)
	if v == "" {
		return nil
	}
	return &v
}
