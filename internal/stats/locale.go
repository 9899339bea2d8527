// internal/stats/locale.go
package stats

import (
	"fmt"
	"time"
)

// Locale - подписи для отображения и экспорта. Агрегация от нее не зависит.
type Locale struct {
	Months        [12]string
	DailyHeader   []string
	MonthlyHeader []string
	DateLayout    string // формат даты в дневном экспорте
	SheetName     string
}

var Russian = Locale{
	Months: [12]string{
		"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
		"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
	},
	DailyHeader:   []string{"Дата", "Организация", "Максимальное количество водителей", "Всего заказов"},
	MonthlyHeader: []string{"Период", "Организация", "Среднее количество водителей", "Всего заказов"},
	DateLayout:    "02.01.2006",
	SheetName:     "Данные",
}

// MonthName - "<месяц> <год>", например "Январь 2024".
func (l Locale) MonthName(t time.Time) string {
	return fmt.Sprintf("%s %04d", l.Months[t.Month()-1], t.Year())
}
