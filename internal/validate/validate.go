// Package validate wraps go-playground/validator with the project's custom
// tags and turns failures into apperr validation errors.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"classattend/internal/apperr"
)

var (
	v          *validator.Validate
	translator ut.Translator

	rollNoPattern = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)
	namePattern   = regexp.MustCompile(`^[A-Za-z\s\-'\.]+$`)

	rollNoTag   = "rollno"
	nameTag     = "personname"
	notBlankTag = "notblank"
)

func init() {
	v = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(rollNoTag, rollNoValidation)
	_ = v.RegisterValidation(nameTag, nameValidation)
	_ = v.RegisterValidation(notBlankTag, notBlankValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{rollNoTag, nameTag, notBlankTag} {
		_ = v.RegisterTranslation(tag, translator, registerFn, translateCustom)
	}
}

// Struct validates s and returns a KindValidation error carrying one entry per bad field.
func Struct(op string, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.E(apperr.KindValidation, op, err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Translate(translator)
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Error: msg})
		msgs = append(msgs, msg)
	}
	return apperr.E(apperr.KindValidation, op, errors.New(strings.Join(msgs, "; ")), fields...)
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case rollNoTag:
		return fe.Field() + " may contain only letters, numbers, hyphens and underscores"
	case nameTag:
		return fe.Field() + " may contain only letters, spaces, hyphens, apostrophes and periods"
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	default:
		return fe.Error()
	}
}

func rollNoValidation(fl validator.FieldLevel) bool {
	return rollNoPattern.MatchString(fl.Field().String())
}

func nameValidation(fl validator.FieldLevel) bool {
	return namePattern.MatchString(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
