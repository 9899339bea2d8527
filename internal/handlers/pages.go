// internal/handlers/pages.go
package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/justinas/nosurf"

	"statdash/internal/config"
	"statdash/internal/middleware"
)

const baseTemplateFile = "base.html"

type PageData struct {
	SiteName        string
	CurrentYear     int
	CurrentPath     string
	CSRFToken       string
	IsAuthenticated bool
	Username        string
	PageTitle       string
	FlashSuccess    string
	FlashError      string
	Errors          url.Values
	Form            interface{}
	FilterEnabled   bool
}

type AppHandlers struct {
	Config         *config.Config
	BaseTmpl       *template.Template
	PagesPath      string
	SessionManager *scs.SessionManager
}

func parseBaseTemplates(templatesDir string) (*template.Template, error) {
	baseFile := filepath.Join(templatesDir, baseTemplateFile)
	if _, err := os.Stat(baseFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("базовый шаблон '%s' не найден в '%s'", baseTemplateFile, templatesDir)
	}

	partsDir := filepath.Join(templatesDir, "parts")
	partFiles, err := filepath.Glob(filepath.Join(partsDir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска частичных шаблонов в '%s': %w", partsDir, err)
	}

	funcMap := template.FuncMap{
		"eq": func(a, b interface{}) bool { return a == b },
	}

	tmpl, err := template.New(baseTemplateFile).Funcs(funcMap).ParseFiles(baseFile)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга базового шаблона '%s': %w", baseFile, err)
	}
	if len(partFiles) > 0 {
		tmpl, err = tmpl.ParseFiles(partFiles...)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга частичных шаблонов из '%s': %w", partsDir, err)
		}
	}
	slog.Info("Базовый шаблон и частичные шаблоны успешно загружены", "base_template", baseFile, "parts_dir", partsDir)
	return tmpl, nil
}

func NewAppHandlers(cfg *config.Config, sm *scs.SessionManager) (*AppHandlers, error) {
	baseTmpl, err := parseBaseTemplates(cfg.TemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base templates: %w", err)
	}
	return &AppHandlers{
		Config:         cfg,
		BaseTmpl:       baseTmpl,
		PagesPath:      filepath.Join(cfg.TemplatesPath, "pages"),
		SessionManager: sm,
	}, nil
}

func (h *AppHandlers) NewPageData(r *http.Request) *PageData {
	isAuthenticated, _ := r.Context().Value(middleware.IsAuthenticatedContextKey).(bool)
	return &PageData{
		SiteName:        h.Config.SiteName,
		CurrentYear:     time.Now().Year(),
		CurrentPath:     r.URL.Path,
		CSRFToken:       nosurf.Token(r),
		IsAuthenticated: isAuthenticated,
		Username:        middleware.Username(r.Context()),
		Errors:          url.Values{},
		FlashSuccess:    h.SessionManager.PopString(r.Context(), middleware.SessionFlashSuccessKey),
		FlashError:      h.SessionManager.PopString(r.Context(), middleware.SessionFlashErrorKey),
	}
}

// RenderPage клонирует базовый шаблон и добавляет к нему страницу pageName.
// Вывод буферизуется: при ошибке шаблона клиент получает только 500.
func (h *AppHandlers) RenderPage(w http.ResponseWriter, r *http.Request, status int, pageName string, data *PageData) {
	if data == nil {
		data = h.NewPageData(r)
	}
	if data.PageTitle == "" {
		data.PageTitle = h.Config.SiteName
	}

	pagePath := filepath.Join(h.PagesPath, pageName)
	if _, err := os.Stat(pagePath); os.IsNotExist(err) {
		slog.Error("Файл шаблона страницы не найден", "page", pageName, "path", pagePath)
		http.Error(w, "Внутренняя ошибка сервера (шаблон страницы)", http.StatusInternalServerError)
		return
	}

	tmplToExecute, err := h.BaseTmpl.Clone()
	if err != nil {
		slog.Error("Не удалось клонировать базовый шаблон", "error", err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}
	tmplToExecute, err = tmplToExecute.ParseFiles(pagePath)
	if err != nil {
		slog.Error("Не удалось загрузить шаблон страницы", "page", pageName, "path", pagePath, "error", err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmplToExecute.ExecuteTemplate(&buf, baseTemplateFile, data); err != nil {
		slog.Error("Ошибка выполнения шаблона", "page", pageName, "error", err, "request_id", middleware.RequestID(r.Context()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *AppHandlers) DashboardPageHandler(w http.ResponseWriter, r *http.Request) {
	data := h.NewPageData(r)
	data.PageTitle = "Статистика организаций"
	data.FilterEnabled = CorpFilterEnabled(h.SessionManager, r, h.Config.CorpFilter.DefaultEnabled)
	h.RenderPage(w, r, http.StatusOK, "dashboard.html", data)
}
