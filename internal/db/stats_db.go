// internal/db/stats_db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"statdash/internal/apperr"
	"statdash/internal/metrics"
	"statdash/internal/models"
)

const (
	fetchDailyStatsQuery = `SELECT date, organization, max_drivers, total_orders
		FROM organization_daily_stats
		WHERE organization = ? AND date BETWEEN ? AND ?
		ORDER BY date`
	listOrganizationsQuery = `SELECT DISTINCT organization FROM organization_daily_stats ORDER BY organization`
)

// StatsStore - шлюз к таблице organization_daily_stats. Только чтение.
type StatsStore struct {
	db     *sql.DB
	driver string
}

func NewStatsStore(db *sql.DB, driver string) *StatsStore {
	return &StatsStore{db: db, driver: driver}
}

// withConn берет одно соединение из пула на время операции и возвращает его
// на любом пути выхода.
func (s *StatsStore) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	if s.db == nil {
		return &apperr.DataSourceError{Op: op, Err: fmt.Errorf("БД не инициализирована")}
	}
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(op).Inc()
		return &apperr.DataSourceError{Op: op, Err: fmt.Errorf("не удалось получить соединение: %w", err)}
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(op).Inc()
		return &apperr.DataSourceError{Op: op, Err: err}
	}
	return nil
}

// FetchDailyStats возвращает строки организации за период включительно, по возрастанию даты.
// Перевернутый период (DateFrom > DateTo) дает пустой результат, не ошибку.
func (s *StatsStore) FetchDailyStats(ctx context.Context, q models.StatsQuery) ([]models.DailyStat, error) {
	if q.Organization == "" {
		return nil, apperr.NewValidation("organization", "Не выбрана организация")
	}
	if q.DateFrom.IsZero() || q.DateTo.IsZero() {
		return nil, apperr.NewValidation("date_from", "Не выбран период")
	}

	dateFrom := models.CalendarDate(q.DateFrom)
	dateTo := models.CalendarDate(q.DateTo)

	stats := []models.DailyStat{}
	err := s.withConn(ctx, "fetch_daily_stats", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, Rebind(s.driver, fetchDailyStatsQuery), q.Organization, dateFrom, dateTo)
		if err != nil {
			return fmt.Errorf("ошибка запроса статистики: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var st models.DailyStat
			var maxDrivers, totalOrders sql.NullInt64
			if err := rows.Scan(&st.Date, &st.Organization, &maxDrivers, &totalOrders); err != nil {
				return fmt.Errorf("ошибка сканирования строки статистики: %w", err)
			}
			st.Date = models.CalendarDate(st.Date)
			st.MaxDrivers = maxDrivers.Int64
			st.TotalOrders = totalOrders.Int64
			stats = append(stats, st)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("ошибка итерации строк статистики: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Получена статистика", "organization", q.Organization, "date_from", dateFrom.Format(models.ISODate), "date_to", dateTo.Format(models.ISODate), "rows", len(stats))
	return stats, nil
}

// ListOrganizations - все различные организации по алфавиту.
func (s *StatsStore) ListOrganizations(ctx context.Context) ([]string, error) {
	organizations := []string{}
	err := s.withConn(ctx, "list_organizations", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, listOrganizationsQuery)
		if err != nil {
			return fmt.Errorf("ошибка запроса списка организаций: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var org string
			if err := rows.Scan(&org); err != nil {
				return fmt.Errorf("ошибка сканирования организации: %w", err)
			}
			organizations = append(organizations, org)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return organizations, nil
}

// Ping проверяет доступность хранилища для /healthz.
func (s *StatsStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, "ping", func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}
