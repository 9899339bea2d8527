// internal/stats/aggregate.go
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"statdash/internal/models"
)

// AveragePlaces - знаков после запятой у среднего количества водителей.
const AveragePlaces = 1

// Report - результат агрегации: либо дневные строки, либо месячные корзины.
type Report struct {
	Monthly bool
	Daily   []models.DailyStat
	Months  []models.MonthlyStat
}

func (r Report) Len() int {
	if r.Monthly {
		return len(r.Months)
	}
	return len(r.Daily)
}

// Aggregate группирует строки по календарным месяцам, если monthly=true.
// Пустой вход и monthly=false возвращают строки без изменений.
func Aggregate(rows []models.DailyStat, monthly bool) Report {
	if !monthly || len(rows) == 0 {
		return Report{Monthly: monthly, Daily: rows}
	}

	type bucket struct {
		organization string
		days         int64
		drivers      int64
		orders       int64
	}

	buckets := make(map[time.Time]*bucket)
	for _, row := range rows {
		key := MonthStart(row.Date)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{organization: row.Organization}
			buckets[key] = b
		}
		b.days++
		b.drivers += row.MaxDrivers
		b.orders += row.TotalOrders
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	months := make([]models.MonthlyStat, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		months = append(months, models.MonthlyStat{
			PeriodStart:  k,
			Organization: b.organization,
			AvgDrivers:   AverageDrivers(b.drivers, b.days),
			TotalOrders:  b.orders,
		})
	}
	return Report{Monthly: true, Months: months}
}

// AverageDrivers делит точно (без float) и округляет до AveragePlaces знаков,
// половину - от нуля: 2.25 -> 2.3.
func AverageDrivers(sum, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(count)).Round(AveragePlaces)
}

// MonthStart возвращает первое число месяца даты t в UTC.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
