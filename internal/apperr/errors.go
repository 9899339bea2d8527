// internal/apperr/errors.go
package apperr

import "fmt"

// ValidationError - некорректные или отсутствующие параметры запроса (HTTP 400).
// Message показывается клиенту как есть.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DataSourceError - ошибка соединения или запроса к хранилищу (HTTP 500).
// Детали только в логах.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("ошибка источника данных (%s): %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// FormattingError - неожиданная форма данных при агрегации или экспорте (HTTP 500).
type FormattingError struct {
	Op  string
	Err error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("ошибка форматирования (%s): %v", e.Op, e.Err)
}

func (e *FormattingError) Unwrap() error { return e.Err }
