// internal/models/forms.go
package models

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// StatsQueryForm - сырые значения query-параметров /api/data и /api/export.
type StatsQueryForm struct {
	Organization string `form:"organization" validate:"required"`
	DateFrom     string `form:"date_from" validate:"required,calendar_date"`
	DateTo       string `form:"date_to" validate:"required,calendar_date"`
	Monthly      string `form:"monthly"`
}
