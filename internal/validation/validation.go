// internal/validation/validation.go
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"statdash/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("calendar_date", validateCalendarDate); err != nil {
		panic(fmt.Sprintf("validation: не удалось зарегистрировать calendar_date: %v", err))
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateStruct возвращает ошибки по полям (ключ - имя из тега form) или nil.
func ValidateStruct(data interface{}) url.Values {
	err := validate.Struct(data)
	if err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) url.Values {
	errorsMap := url.Values{}
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldErr := range validationErrs {
			errorsMap.Add(fieldErr.Field(), getErrorMessage(fieldErr))
		}
	} else {
		errorsMap.Add("general", "Ошибка валидации: "+err.Error())
	}
	return errorsMap
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Field() {
	case "organization":
		if err.Tag() == "required" {
			return "Не выбрана организация"
		}
	case "date_from", "date_to":
		switch err.Tag() {
		case "required":
			return "Не выбран период"
		case "calendar_date":
			return "Некорректная дата периода"
		}
	}
	switch err.Tag() {
	case "required":
		return "Это поле обязательно для заполнения."
	case "calendar_date":
		return "Введите дату в формате ГГГГ-ММ-ДД."
	default:
		return fmt.Sprintf("Некорректное значение для поля %s (тег: %s).", err.Field(), err.Tag())
	}
}

func validateCalendarDate(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := models.ParseCalendarDate(value)
	return err == nil
}
