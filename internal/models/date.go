// internal/models/date.go
package models

import (
	"fmt"
	"strings"
	"time"
)

const ISODate = "2006-01-02"

// Форматы, которые присылает datepicker, ручной ввод и внешние скрипты.
var calendarDateLayouts = []string{
	ISODate,
	"02.01.2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// ParseCalendarDate разбирает дату и отбрасывает время суток.
// Результат всегда в UTC на полночь.
func ParseCalendarDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("пустая дата")
	}
	for _, layout := range calendarDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return CalendarDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("не удалось разобрать дату %q", value)
}

// CalendarDate приводит момент времени к календарной дате (полночь UTC)
// без сдвига числа из-за часового пояса.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
