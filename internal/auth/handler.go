package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-signup/internal/accounts"
	"github.com/odyssey-erp/odyssey-signup/internal/confirmation"
	"github.com/odyssey-erp/odyssey-signup/internal/shared"
	"github.com/odyssey-erp/odyssey-signup/internal/view"
)

// Registrar drives the confirmation lifecycle from HTTP.
type Registrar interface {
	BeginRegistration(ctx context.Context, email, password string) (string, error)
	Confirm(ctx context.Context, token string) (*accounts.User, error)
	TTL() time.Duration
}

// Handler wires HTTP endpoints for registration and authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	registrar      Registrar
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registrar Registrar, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		registrar:      registrar,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		now:            time.Now,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showHome)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Get("/confirm/{token}", h.handleConfirm)
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type credentialsForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=1024"`
}

type formPageData struct {
	Form   credentialsForm
	Errors map[string]string
}

type homePageData struct {
	Email string
}

type mailPageData struct {
	Email     string
	ExpiresAt time.Time
}

type invalidPageData struct {
	Message string
	Retry   string
}

func (h *Handler) showHome(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	data := homePageData{}
	if sess.Authenticated() {
		data.Email = sess.User().Email
	}
	h.render(w, r, http.StatusOK, "pages/home.html", "Home", data)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if h.redirectAuthenticated(w, r) {
		return
	}
	h.render(w, r, http.StatusOK, "pages/register.html", "Register", formPageData{})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if h.redirectAuthenticated(w, r) {
		return
	}
	form, ok := h.parseCredentials(w, r)
	if !ok {
		h.renderInvalid(w, r, "The submitted registration details are not valid.", "/register")
		return
	}

	if _, err := h.registrar.BeginRegistration(r.Context(), form.Email, form.Password); err != nil {
		if errors.Is(err, confirmation.ErrInvalidCredential) {
			h.renderInvalid(w, r, "The submitted registration details are not valid.", "/register")
			return
		}
		h.logger.Error("begin registration", slog.String("email", accounts.NormalizeEmail(form.Email)), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := mailPageData{
		Email:     accounts.NormalizeEmail(form.Email),
		ExpiresAt: h.now().Add(h.registrar.TTL()),
	}
	h.render(w, r, http.StatusOK, "pages/mail.html", "Check your email", data)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	user, err := h.registrar.Confirm(r.Context(), token)
	if err != nil {
		if errors.Is(err, confirmation.ErrInvalidToken) {
			h.renderInvalid(w, r, "This confirmation link is invalid or has expired.", "/register")
			return
		}
		h.logger.Error("confirm registration", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.startSession(r, user.Email, "Your account is confirmed")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if h.redirectAuthenticated(w, r) {
		return
	}
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", formPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.redirectAuthenticated(w, r) {
		return
	}
	form, ok := h.parseCredentials(w, r)
	if !ok {
		h.renderInvalid(w, r, "Email or password is not valid.", "/login")
		return
	}

	user, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.renderInvalid(w, r, "Email or password is not valid.", "/login")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.startSession(r, user.Email, "Welcome back")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) parseCredentials(w http.ResponseWriter, r *http.Request) (credentialsForm, bool) {
	if err := r.ParseForm(); err != nil {
		return credentialsForm{}, false
	}
	form := credentialsForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		return form, false
	}
	return form, true
}

func (h *Handler) startSession(r *http.Request, email, greeting string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during sign in")
		return
	}
	sess.SetUser(email)
	h.csrfManager.Rotate(sess)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: greeting})
}

func (h *Handler) redirectAuthenticated(w http.ResponseWriter, r *http.Request) bool {
	if !shared.SessionFromContext(r.Context()).Authenticated() {
		return false
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return true
}

func (h *Handler) renderInvalid(w http.ResponseWriter, r *http.Request, message, retry string) {
	h.render(w, r, http.StatusBadRequest, "pages/invalid.html", "Invalid", invalidPageData{Message: message, Retry: retry})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Warn("ensure csrf token", slog.Any("error", err))
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if sess != nil {
		viewData.Flash = sess.PopFlash()
		if sess.Authenticated() {
			viewData.User = sess.User().Email
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, name, viewData); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
	}
}
