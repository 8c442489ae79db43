package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"blogstore/internal/ratelimit"
	"blogstore/internal/util"
	"blogstore/pkg/domain"
	"blogstore/services/blog/internal/app"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Limiters are optional; a nil limiter admits every request.
	SignupLimiter  *ratelimit.FixedWindowLimiter
	LoginLimiter   *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the blog service.
type Server struct {
	app            *app.App
	router         chi.Router
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		router:         chi.NewRouter(),
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		trustedProxies: cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("blog", util.WithSecurityHeaders(util.WithCORS(s.router))))
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/createUser", s.handleSignUp)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/articles", func(r chi.Router) {
		r.Get("/all", s.handleListAll)
		r.Get("/{userId}", s.handleListByOwner)
		r.Get("/{userId}/{articleId}", s.handleGetArticle)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/", s.handleCreateArticle)
			r.Put("/{userId}/{articleId}", s.handleUpdateArticle)
			r.Delete("/{userId}/{articleId}", s.handleDeleteArticle)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type userContextKey struct{}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userContextKey{}).(domain.User)
	return user
}

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		return
	}
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	user, err := s.app.SignUp(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(r.Context(), token); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "logged out"})
}

type createArticleRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateArticleRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req createArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.UserID != "" && req.UserID != user.ID {
		writeAppError(w, r, app.ErrForbidden)
		return
	}
	article, err := s.app.CreateArticle(r.Context(), user.ID, req.Title, req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, article)
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	articles, err := s.app.ListArticlesByDate(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(articles))
}

func (s *Server) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	articles, err := s.app.ListArticles(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(articles))
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, ok, err := s.app.GetArticle(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "articleId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if !ok {
		writeAppError(w, r, app.ErrArticleNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, article)
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownedPath(w, r)
	if !ok {
		return
	}
	var req updateArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	article, err := s.app.UpdateArticle(r.Context(), ownerID, chi.URLParam(r, "articleId"), req.Title, req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, article)
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownedPath(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteArticle(r.Context(), ownerID, chi.URLParam(r, "articleId")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedPath returns the {userId} path segment when it names the caller.
func ownedPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := chi.URLParam(r, "userId")
	if ownerID != currentUser(r).ID {
		writeAppError(w, r, app.ErrForbidden)
		return "", false
	}
	return ownerID, true
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, r, http.StatusTooManyRequests, msg)
	return false
}

func nonNil(articles []domain.Article) []domain.Article {
	if articles == nil {
		return []domain.Article{}
	}
	return articles
}

// decodeJSON reads a single JSON object with a closed field list.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &app.ValidationError{Field: "body"}
		}
		return &app.ValidationError{Field: "body", Err: err}
	}
	if dec.More() {
		return &app.ValidationError{Field: "body", Err: errors.New("unexpected data after JSON object")}
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

type envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
	RequestID string     `json:"requestId,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: true, Data: payload})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeErrorCode(w, r, status, msg, errorCode(status))
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, msg, code string) {
	render.Status(r, status)
	render.JSON(w, r, envelope{
		Success:   false,
		Error:     &errorBody{Message: msg, Code: code},
		RequestID: util.RequestIDFromRequest(r),
	})
}

// writeAppError maps core outcomes to status codes. Backend details never
// reach the client; they are logged with the request id instead.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	var opErr *app.OperationError
	switch {
	case errors.As(err, &verr):
		writeErrorCode(w, r, http.StatusBadRequest, verr.Error(), "VALIDATION_ERROR")
	case errors.Is(err, app.ErrArticleNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "article not found", "ARTICLE_NOT_FOUND")
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeErrorCode(w, r, http.StatusBadRequest, err.Error(), "AUTH_EMAIL_EXISTS")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeErrorCode(w, r, http.StatusUnauthorized, err.Error(), "AUTH_INVALID_CREDENTIALS")
	case errors.Is(err, app.ErrUnauthorized):
		writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "AUTH_INVALID_TOKEN")
	case errors.Is(err, app.ErrForbidden):
		writeErrorCode(w, r, http.StatusForbidden, "forbidden", "ARTICLE_FORBIDDEN")
	case errors.As(err, &opErr):
		util.LoggerFromContext(r.Context()).Error("operation failed", "op", opErr.Op, "status", opErr.Status, "err", opErr.Err)
		writeError(w, r, opErr.Status, strings.ToLower(http.StatusText(opErr.Status)))
	default:
		util.LoggerFromContext(r.Context()).Error("unhandled error", "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "ARTICLE_FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}
