package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/util"
)

// AuthHandler exposes the sign-in flow over HTTP. The session token rides
// in an HttpOnly cookie; request bodies carry only the identity, request
// token, and code.
type AuthHandler struct {
	issuer    *service.OtpIssuer
	verifier  *service.OtpVerifier
	authority *service.SessionAuthority
	cfg       *config.Config
}

func NewAuthHandler(issuer *service.OtpIssuer, verifier *service.OtpVerifier, authority *service.SessionAuthority, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		issuer:    issuer,
		verifier:  verifier,
		authority: authority,
		cfg:       cfg,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

type requestCodeBody struct {
	Identity string `json:"identity"`
}

type verifyBody struct {
	RequestToken string `json:"request_token"`
	Code         string `json:"code"`
}

type sessionInfo struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/otp/request", h.RequestCode)
		r.Post("/otp/verify", h.VerifyCode)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/session", h.SessionStatus)
		})
	})
}

// RequestCode starts a sign-in attempt for the supplied identity.
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var body requestCodeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	identity := util.SanitizeInput(body.Identity)
	if identity == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("identity is required"), "Invalid request body")
		return
	}

	result, err := h.issuer.RequestCode(r.Context(), identity)
	if err != nil {
		h.respondWithError(w, h.statusCode(err), err, "Failed to issue sign-in code")
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, successResponse(result, "Sign-in code sent"))
}

// VerifyCode redeems a code and, on success, sets the session cookie.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if body.RequestToken == "" || body.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("request_token and code are required"), "Invalid request body")
		return
	}

	session, err := h.verifier.Verify(r.Context(), body.RequestToken, body.Code)
	if err != nil {
		h.respondWithError(w, h.statusCode(err), err, "Verification failed")
		return
	}

	h.setSessionCookie(w, session)
	h.respondWithJSON(w, http.StatusOK, successResponse(sessionInfo{ExpiresAt: session.ExpiresAt}, "Signed in"))
}

// Logout revokes the current session, if any, and clears the cookie. Always
// succeeds: a missing or already-revoked session ends in the same state.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cfg.Auth.CookieName); err == nil && cookie.Value != "" {
		if err := h.authority.Revoke(r.Context(), cookie.Value); err != nil {
			h.respondWithError(w, http.StatusInternalServerError, err, "Failed to sign out")
			return
		}
	}

	h.clearSessionCookie(w)
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Signed out"))
}

// SessionStatus reports the validated session pulled from the request
// context by RequireSession.
func (h *AuthHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, errors.New("no session"), "Not signed in")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(sessionInfo{ExpiresAt: session.ExpiresAt}, "Session active"))
}

type sessionContextKey struct{}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*model.Session)
	return session, ok
}

// RequireSession rejects requests without a live session cookie and stashes
// the validated session in the request context.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(h.cfg.Auth.CookieName)
		if err != nil || cookie.Value == "" {
			h.respondWithError(w, http.StatusUnauthorized, errors.New("authentication required"), "Not signed in")
			return
		}

		session, err := h.authority.Validate(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				h.clearSessionCookie(w)
				h.respondWithError(w, http.StatusUnauthorized, errors.New("session expired or revoked"), "Not signed in")
				return
			}
			h.respondWithError(w, http.StatusInternalServerError, err, "Failed to validate session")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    session.SessionToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// statusCode maps service sentinels to HTTP statuses. Expired and locked
// requests both surface as 410: the request token is dead either way.
func (h *AuthHandler) statusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrDeliveryFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("Failed to encode response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, status int, err error, message string) {
	h.respondWithJSON(w, status, errorResponse(err, message))
}
