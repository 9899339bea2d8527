// internal/stats/format.go
package stats

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"statdash/internal/apperr"
	"statdash/internal/models"
)

// DriversAverage сериализуется в JSON числом: целым, если дробной части нет,
// иначе с одним знаком после запятой.
type DriversAverage struct {
	decimal.Decimal
}

func (a DriversAverage) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

type DailyRecord struct {
	Date         string `json:"date"`
	Organization string `json:"organization"`
	MaxDrivers   int64  `json:"max_drivers"`
	TotalOrders  int64  `json:"total_orders"`
}

type MonthlyRecord struct {
	Date         string         `json:"date"`
	Organization string         `json:"organization"`
	AvgDrivers   DriversAverage `json:"avg_drivers"`
	TotalOrders  int64          `json:"total_orders"`
	MonthName    string         `json:"month_name"`
}

// ExportTable - заголовок и строки для записи в таблицу.
// ColumnFormats выровнен по Header; пустая строка - без числового формата.
type ExportTable struct {
	SheetName     string
	Header        []string
	ColumnFormats []string
	Rows          [][]any
}

type Formatter struct {
	Locale Locale
}

func NewFormatter(locale Locale) *Formatter {
	return &Formatter{Locale: locale}
}

// ToJSONRecords возвращает []DailyRecord или []MonthlyRecord; никогда nil,
// чтобы пустой результат кодировался как [].
func (f *Formatter) ToJSONRecords(report Report) any {
	if report.Monthly {
		records := make([]MonthlyRecord, 0, len(report.Months))
		for _, m := range report.Months {
			records = append(records, MonthlyRecord{
				Date:         m.PeriodStart.Format(models.ISODate),
				Organization: m.Organization,
				AvgDrivers:   DriversAverage{m.AvgDrivers},
				TotalOrders:  m.TotalOrders,
				MonthName:    f.Locale.MonthName(m.PeriodStart),
			})
		}
		return records
	}

	records := make([]DailyRecord, 0, len(report.Daily))
	for _, d := range report.Daily {
		records = append(records, DailyRecord{
			Date:         d.Date.Format(models.ISODate),
			Organization: d.Organization,
			MaxDrivers:   d.MaxDrivers,
			TotalOrders:  d.TotalOrders,
		})
	}
	return records
}

// ParseDailyRecords - обратное преобразование дневного JSON-представления.
func ParseDailyRecords(records []DailyRecord) ([]models.DailyStat, error) {
	rows := make([]models.DailyStat, 0, len(records))
	for i, rec := range records {
		date, err := time.Parse(models.ISODate, rec.Date)
		if err != nil {
			return nil, &apperr.FormattingError{Op: "parse_daily_record", Err: fmt.Errorf("запись %d: %w", i, err)}
		}
		rows = append(rows, models.DailyStat{
			Date:         date,
			Organization: rec.Organization,
			MaxDrivers:   rec.MaxDrivers,
			TotalOrders:  rec.TotalOrders,
		})
	}
	return rows, nil
}

// ToExportTable строит таблицу для выгрузки. Для месячного отчета колонка
// организации заполняется значением из запроса. Пустой отчет дает только заголовок.
func (f *Formatter) ToExportTable(report Report, organization string) (ExportTable, error) {
	table := ExportTable{SheetName: f.Locale.SheetName}

	if report.Monthly {
		table.Header = append([]string(nil), f.Locale.MonthlyHeader...)
		table.ColumnFormats = []string{"", "", "0.0", ""}
		table.Rows = make([][]any, 0, len(report.Months))
		for i, m := range report.Months {
			if m.PeriodStart.IsZero() {
				return ExportTable{}, &apperr.FormattingError{Op: "export_table", Err: fmt.Errorf("месячная запись %d без периода", i)}
			}
			table.Rows = append(table.Rows, []any{
				f.Locale.MonthName(m.PeriodStart),
				organization,
				m.AvgDrivers.Round(AveragePlaces).InexactFloat64(),
				m.TotalOrders,
			})
		}
		return table, nil
	}

	table.Header = append([]string(nil), f.Locale.DailyHeader...)
	table.ColumnFormats = []string{"", "", "", ""}
	table.Rows = make([][]any, 0, len(report.Daily))
	for i, d := range report.Daily {
		if d.Date.IsZero() {
			return ExportTable{}, &apperr.FormattingError{Op: "export_table", Err: fmt.Errorf("дневная запись %d без даты", i)}
		}
		table.Rows = append(table.Rows, []any{
			d.Date.Format(f.Locale.DateLayout),
			d.Organization,
			d.MaxDrivers,
			d.TotalOrders,
		})
	}
	return table, nil
}
