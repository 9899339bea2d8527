// internal/handlers/auth.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"

	"statdash/internal/auth"
	"statdash/internal/middleware"
	"statdash/internal/models"
	"statdash/internal/validation"
)

type AuthHandlers struct {
	SessionManager *scs.SessionManager
	Operator       *auth.Operator
	App            *AppHandlers
}

func NewAuthHandlers(sm *scs.SessionManager, operator *auth.Operator, app *AppHandlers) *AuthHandlers {
	return &AuthHandlers{SessionManager: sm, Operator: operator, App: app}
}

func (h *AuthHandlers) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	if h.SessionManager.GetBool(r.Context(), middleware.SessionAuthenticatedKey) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := h.App.NewPageData(r)
	data.PageTitle = "Вход"
	data.Form = models.LoginForm{}
	h.App.RenderPage(w, r, http.StatusOK, "login.html", data)
}

func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Ошибка парсинга формы входа", "error", err)
		http.Error(w, "Ошибка сервера", http.StatusBadRequest)
		return
	}
	form := models.LoginForm{
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Password: r.PostForm.Get("password"),
	}

	if validationErrors := validation.ValidateStruct(form); len(validationErrors) > 0 {
		h.renderLoginError(w, r, http.StatusBadRequest, form, "Введите логин и пароль")
		return
	}

	if !h.Operator.Authenticate(form.Username, form.Password) {
		slog.Warn("Неудачная попытка входа", "username", form.Username, "ip", middleware.ClientIP(r, h.App.Config.TrustProxy))
		h.renderLoginError(w, r, http.StatusUnauthorized, form, "Неверный логин или пароль")
		return
	}

	if err := h.SessionManager.RenewToken(r.Context()); err != nil {
		slog.Error("Ошибка обновления токена сессии", "error", err)
		http.Error(w, "Ошибка сервера", http.StatusInternalServerError)
		return
	}
	h.SessionManager.Put(r.Context(), middleware.SessionAuthenticatedKey, true)
	h.SessionManager.Put(r.Context(), middleware.SessionUsernameKey, form.Username)
	h.SessionManager.Put(r.Context(), middleware.SessionFlashSuccessKey, "Вы вошли как "+form.Username)
	slog.Info("Оператор успешно вошел", "username", form.Username, "ip", middleware.ClientIP(r, h.App.Config.TrustProxy))

	redirectURL := h.SessionManager.PopString(r.Context(), middleware.SessionRedirectKey)
	if !strings.HasPrefix(redirectURL, "/") || strings.HasPrefix(redirectURL, "//") {
		redirectURL = "/"
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

func (h *AuthHandlers) renderLoginError(w http.ResponseWriter, r *http.Request, status int, form models.LoginForm, message string) {
	data := h.App.NewPageData(r)
	data.PageTitle = "Вход - ошибка"
	form.Password = ""
	data.Form = form
	data.Errors.Add("general", message)
	h.App.RenderPage(w, r, status, "login.html", data)
}

func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	username := h.SessionManager.GetString(r.Context(), middleware.SessionUsernameKey)
	if err := h.SessionManager.Destroy(r.Context()); err != nil {
		slog.Error("Ошибка удаления сессии при выходе", "error", err)
		http.Error(w, "Ошибка сервера", http.StatusInternalServerError)
		return
	}
	slog.Info("Оператор вышел", "username", username)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
