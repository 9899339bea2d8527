// internal/models/stats.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStat - одна строка таблицы organization_daily_stats.
type DailyStat struct {
	Date         time.Time
	Organization string
	MaxDrivers   int64
	TotalOrders  int64
}

// MonthlyStat - агрегат DailyStat за календарный месяц. Не хранится в БД.
type MonthlyStat struct {
	PeriodStart  time.Time // первое число месяца
	Organization string
	AvgDrivers   decimal.Decimal
	TotalOrders  int64
}

// StatsQuery - проверенные параметры запроса статистики.
type StatsQuery struct {
	Organization string
	DateFrom     time.Time
	DateTo       time.Time
	Monthly      bool
}
