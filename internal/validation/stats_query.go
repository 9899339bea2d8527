// internal/validation/stats_query.go
package validation

import (
	"net/url"
	"strings"

	"statdash/internal/apperr"
	"statdash/internal/models"
)

// Порядок, в котором ошибки показываются пользователю.
var statsQueryFields = []string{"organization", "date_from", "date_to"}

// ParseStatsQuery проверяет параметры /api/data и /api/export и переводит их в StatsQuery.
func ParseStatsQuery(values url.Values) (models.StatsQuery, error) {
	form := models.StatsQueryForm{
		Organization: values.Get("organization"),
		DateFrom:     values.Get("date_from"),
		DateTo:       values.Get("date_to"),
		Monthly:      values.Get("monthly"),
	}

	if errs := ValidateStruct(form); len(errs) > 0 {
		for _, field := range statsQueryFields {
			if msg := errs.Get(field); msg != "" {
				return models.StatsQuery{}, apperr.NewValidation(field, msg)
			}
		}
		return models.StatsQuery{}, apperr.NewValidation("", errs.Encode())
	}

	dateFrom, err := models.ParseCalendarDate(form.DateFrom)
	if err != nil {
		return models.StatsQuery{}, apperr.NewValidation("date_from", "Некорректная дата периода")
	}
	dateTo, err := models.ParseCalendarDate(form.DateTo)
	if err != nil {
		return models.StatsQuery{}, apperr.NewValidation("date_to", "Некорректная дата периода")
	}

	return models.StatsQuery{
		Organization: form.Organization,
		DateFrom:     dateFrom,
		DateTo:       dateTo,
		Monthly:      ParseBoolParam(form.Monthly, false),
	}, nil
}

// ParseBoolParam: "true"/"1" в любом регистре - true, пустое значение - def, остальное - false.
func ParseBoolParam(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	return strings.EqualFold(value, "true") || value == "1"
}
