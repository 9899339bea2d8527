// internal/handlers/stats_api.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"statdash/internal/apperr"
	"statdash/internal/export"
	"statdash/internal/metrics"
	"statdash/internal/middleware"
	"statdash/internal/models"
	"statdash/internal/stats"
	"statdash/internal/utils"
	"statdash/internal/validation"
)

const sessionCorpFilterKey = "corp_filter_enabled"

type StatsFetcher interface {
	FetchDailyStats(ctx context.Context, q models.StatsQuery) ([]models.DailyStat, error)
}

type StatsHandlers struct {
	Store          StatsFetcher
	Organizations  *stats.OrganizationFilter
	Formatter      *stats.Formatter
	SessionManager *scs.SessionManager
	FilterDefault  bool
}

func NewStatsHandlers(store StatsFetcher, orgs *stats.OrganizationFilter, formatter *stats.Formatter, sm *scs.SessionManager, filterDefault bool) *StatsHandlers {
	return &StatsHandlers{
		Store:          store,
		Organizations:  orgs,
		Formatter:      formatter,
		SessionManager: sm,
		FilterDefault:  filterDefault,
	}
}

// CorpFilterEnabled - предпочтение фильтра из сессии оператора, иначе значение по умолчанию.
func CorpFilterEnabled(sm *scs.SessionManager, r *http.Request, def bool) bool {
	if sm.Exists(r.Context(), sessionCorpFilterKey) {
		return sm.GetBool(r.Context(), sessionCorpFilterKey)
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Ошибка кодирования JSON ответа", "error", err)
	}
}

// writeError переводит ошибку в HTTP-ответ. Клиенту уходит только текст
// ValidationError; детали остальных ошибок остаются в логе.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID := middleware.RequestID(r.Context())

	var validationErr *apperr.ValidationError
	var dataSourceErr *apperr.DataSourceError
	var formattingErr *apperr.FormattingError
	switch {
	case errors.As(err, &validationErr):
		slog.Info("Некорректные параметры запроса", "op", op, "field", validationErr.Field, "error", validationErr.Message, "request_id", requestID)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Message})
	case errors.As(err, &dataSourceErr):
		slog.Error("Ошибка при получении данных", "op", op, "store_op", dataSourceErr.Op, "error", err, "query", r.URL.RawQuery, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Ошибка сервера при получении данных"})
	case errors.As(err, &formattingErr):
		slog.Error("Ошибка форматирования данных", "op", op, "format_op", formattingErr.Op, "error", err, "query", r.URL.RawQuery, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Ошибка сервера при подготовке данных"})
	default:
		slog.Error("Непредвиденная ошибка", "op", op, "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Ошибка сервера"})
	}
}

// OrganizationsHandler: GET /api/organizations?filter_corp=true|false
func (h *StatsHandlers) OrganizationsHandler(w http.ResponseWriter, r *http.Request) {
	applyFilter := validation.ParseBoolParam(r.URL.Query().Get("filter_corp"), CorpFilterEnabled(h.SessionManager, r, h.FilterDefault))
	writeJSON(w, http.StatusOK, h.Organizations.List(r.Context(), applyFilter))
}

// ToggleCorpFilterHandler: POST /api/toggle-corp-filter. Меняет только сессию текущего оператора.
func (h *StatsHandlers) ToggleCorpFilterHandler(w http.ResponseWriter, r *http.Request) {
	enabled := !CorpFilterEnabled(h.SessionManager, r, h.FilterDefault)
	h.SessionManager.Put(r.Context(), sessionCorpFilterKey, enabled)
	slog.Info("Фильтр организаций переключен", "filter_enabled", enabled, "username", middleware.Username(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "filter_enabled": enabled})
}

func (h *StatsHandlers) loadReport(r *http.Request) (models.StatsQuery, []models.DailyStat, error) {
	q, err := validation.ParseStatsQuery(r.URL.Query())
	if err != nil {
		return q, nil, err
	}
	rows, err := h.Store.FetchDailyStats(r.Context(), q)
	if err != nil {
		return q, nil, err
	}
	return q, rows, nil
}

// DataHandler: GET /api/data - дневные или месячные записи в JSON.
func (h *StatsHandlers) DataHandler(w http.ResponseWriter, r *http.Request) {
	q, rows, err := h.loadReport(r)
	if err != nil {
		writeError(w, r, "data", err)
		return
	}
	report := stats.Aggregate(rows, q.Monthly)
	writeJSON(w, http.StatusOK, h.Formatter.ToJSONRecords(report))
}

// ExportHandler: GET /api/export - XLSX-файл; 404, если строк нет.
func (h *StatsHandlers) ExportHandler(w http.ResponseWriter, r *http.Request) {
	q, rows, err := h.loadReport(r)
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Нет данных для экспорта"})
		return
	}

	report := stats.Aggregate(rows, q.Monthly)
	table, err := h.Formatter.ToExportTable(report, q.Organization)
	if err != nil {
		writeError(w, r, "export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, table); err != nil {
		writeError(w, r, "export", err)
		return
	}

	grain := "daily"
	if report.Monthly {
		grain = "monthly"
	}
	metrics.ExportsTotal.WithLabelValues(grain).Inc()

	filename := utils.SanitizeFilename(fmt.Sprintf("export_%s_%s_%s.xlsx",
		q.Organization, q.DateFrom.Format(models.ISODate), q.DateTo.Format(models.ISODate)))

	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("Не удалось отправить файл экспорта", "error", err, "request_id", middleware.RequestID(r.Context()))
		return
	}
	slog.Info("Экспорт сформирован", "organization", q.Organization, "grain", grain, "rows", len(table.Rows), "filename", filename)
}
