package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"sauat/cmd/internal/auth/session"
)

// AuthService is the session orchestrator as seen by the HTTP layer.
type AuthService interface {
	Login(ctx context.Context, email, password, ip string) (session.Issued, error)
	Register(ctx context.Context, in session.RegisterInput, ip string) (session.Issued, error)
	Refresh(ctx context.Context, refreshToken, ip string) (session.Issued, error)
	Logout(ctx context.Context, refreshToken, ip string) error
	CurrentUser(ctx context.Context, accessToken string) (session.Profile, error)
}

var _ AuthService = (*session.Service)(nil)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config
	svc AuthService
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, svc AuthService, cfg Config) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil auth service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Handler{log: log, cfg: cfg, svc: svc}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	issued, err := h.svc.Register(r.Context(), session.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		PhoneNumber: trimPtr(req.PhoneNumber),
	}, clientIP(r, h.cfg.TrustProxy))
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	writeOK(w, "User registered successfully", toLoginResponse(issued))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	issued, err := h.svc.Login(r.Context(), req.Email, req.Password, clientIP(r, h.cfg.TrustProxy))
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}

	writeOK(w, "Logged in successfully", toLoginResponse(issued))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req refreshTokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	issued, err := h.svc.Refresh(r.Context(), refreshToken, clientIP(r, h.cfg.TrustProxy))
	if err != nil {
		h.writeServiceError(w, r, "refresh", err)
		return
	}

	writeOK(w, "Token refreshed successfully", toRefreshTokenResponse(issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req refreshTokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := h.svc.Logout(r.Context(), strings.TrimSpace(req.RefreshToken), clientIP(r, h.cfg.TrustProxy)); err != nil {
		h.writeServiceError(w, r, "logout", err)
		return
	}

	writeOK(w, "Logged out successfully", struct{}{})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	p, err := h.svc.CurrentUser(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, r, "me", err)
		return
	}

	writeOK(w, "", toUserProfileResponse(p))
}

// ---- error mapping ----

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, session.ErrAuthentication):
		switch op {
		case "login":
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		case "refresh":
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "Refresh token invalid or expired")
		default:
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		}

	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrInvalidSignature),
		errors.Is(err, session.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")

	case errors.Is(err, session.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "Email already registered")

	case errors.Is(err, session.ErrInvalidInput):
		msg := "invalid input"
		var ie session.InputError
		if errors.As(err, &ie) && ie.Field != "" {
			msg = "invalid " + ie.Field
			if ie.Err != nil {
				msg += ": " + ie.Err.Error()
			}
		}
		writeError(w, http.StatusBadRequest, "invalid_request", msg)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.log.Info("auth."+op+".canceled", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")

	case errors.Is(err, session.ErrStorageUnavailable):
		h.log.Error("auth."+op+".storage.fail", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry later")

	default:
		h.log.Error("auth."+op+".fail", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ---- helpers ----

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	return false
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// clientIP returns the caller address recorded on refresh tokens, or "unknown".
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return "unknown"
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
