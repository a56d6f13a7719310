package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"

	"fastap/internal/core/model/response"
	"fastap/internal/core/port"
	"fastap/internal/core/util"
)

var (
	Validator  *validator.Validate
	Translator ut.Translator
)

// fieldMessages overrides the generic translation for a json field and tag.
var fieldMessages = map[string]map[string]string{
	"username": {
		"required": "Username no ingresado.",
		"min":      "Longitud minima de 5 y maxima de 10",
		"max":      "Longitud minima de 5 y maxima de 10",
	},
	"name": {
		"required": "Nombre no ingresado.",
		"min":      "Nombre no valido.",
	},
	"email": {
		"required":    "Email no ingresado.",
		"emailformat": "Formato de email inválido.",
	},
	"password": {
		"required":       "Password no ingresado.",
		"strongpassword": "Contraseña insegura.",
	},
	"newPassword": {
		"required":       "Password no ingresado.",
		"strongpassword": "Contraseña insegura.",
	},
	"confirmPass": {
		"required": "Confirma la contraseña.",
	},
	"id": {
		"required": "Identificador no ingresado.",
	},
}

func init() {
	Validator = validator.New(validator.WithRequiredStructEnabled())

	Validator.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]

		if name == "-" {
			return ""
		}

		if name == "" {
			return field.Name
		}

		return name
	})

	mustRegister("emailformat", func(fl validator.FieldLevel) bool {
		return util.IsValidEmail(fl.Field().String())
	})

	mustRegister("strongpassword", func(fl validator.FieldLevel) bool {
		return util.IsStrongPassword(fl.Field().String())
	})

	spanish := es.New()
	uni := ut.New(spanish, spanish)

	var found bool
	Translator, found = uni.GetTranslator("es")

	if !found {
		panic("translator es not found")
	}

	if err := es_translations.RegisterDefaultTranslations(Validator, Translator); err != nil {
		panic(err)
	}

	addCustomTranslations()
}

func mustRegister(tag string, fn validator.Func) {
	if err := Validator.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func addCustomTranslations() {
	Validator.RegisterTranslation("emailformat", Translator, func(ut ut.Translator) error {
		return ut.Add("emailformat", "{0} no tiene un formato de email válido", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("emailformat", fe.Field())
		return t
	})

	Validator.RegisterTranslation("strongpassword", Translator, func(ut ut.Translator) error {
		return ut.Add("strongpassword", "{0} debe tener minúsculas, mayúsculas y dígitos", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("strongpassword", fe.Field())
		return t
	})
}

func message(fe validator.FieldError) string {
	if byTag, ok := fieldMessages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}

	return fe.Translate(Translator)
}

// FormatValidationErrors keeps the struct declaration order, so the first
// entry is the first failing field.
func FormatValidationErrors(err error) []response.ValidationError {
	var result []response.ValidationError

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			result = append(result, response.ValidationError{
				Field:   fieldError.Field(),
				Message: message(fieldError),
			})
		}
	}

	return result
}

type StructValidator struct{}

func New() port.Validator {
	return &StructValidator{}
}

func (v *StructValidator) ValidateStruct(s interface{}) error {
	return Validator.Struct(s)
}

func (v *StructValidator) FormatValidationErrors(err error) []response.ValidationError {
	return FormatValidationErrors(err)
}
