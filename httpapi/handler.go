package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrEthical07/inkauth"
	"github.com/MrEthical07/inkauth/middleware"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Options configures a Handler.
type Options struct {
	// Production marks cookies Secure.
	Production bool
	// ProxyHeader, when set, is trusted for the client IP.
	ProxyHeader string
	Logger      zerolog.Logger
}

// Handler serves the /auth routes.
type Handler struct {
	engine *inkauth.Engine
	gate   *middleware.Gate
	secure bool
	log    zerolog.Logger
	mux    *http.ServeMux
}

// New wires the auth routes for engine.
func New(engine *inkauth.Engine, opts Options) *Handler {
	h := &Handler{
		engine: engine,
		secure: opts.Production,
		log:    opts.Logger,
		mux:    http.NewServeMux(),
	}
	h.gate = middleware.NewGate(engine,
		middleware.WithProxyHeader(opts.ProxyHeader),
		middleware.WithSecureCookies(opts.Production),
		middleware.WithErrorWriter(h.writeError),
	)

	public := func(fn http.HandlerFunc) http.Handler { return h.gate.Client(fn) }
	private := func(fn http.HandlerFunc) http.Handler { return h.gate.Authenticate(fn) }

	h.mux.Handle("POST /auth/register", public(h.register))
	h.mux.Handle("POST /auth/login", public(h.login))
	h.mux.Handle("POST /auth/refresh", public(h.refresh))
	h.mux.Handle("POST /auth/forgot-password", public(h.forgotPassword))
	h.mux.Handle("POST /auth/reset-password", public(h.resetPassword))
	h.mux.Handle("GET /auth/verify-email", public(h.verifyEmail))

	h.mux.Handle("POST /auth/logout", private(h.logout))
	h.mux.Handle("POST /auth/logout-all", private(h.logoutAll))
	h.mux.Handle("POST /auth/change-password", private(h.changePassword))
	h.mux.Handle("POST /auth/verify-email/request", private(h.requestVerification))
	h.mux.Handle("GET /auth/sessions", private(h.sessions))
	h.mux.Handle("DELETE /auth/sessions/{id}", private(h.revokeSession))
	h.mux.Handle("GET /auth/me", private(h.me))
	return h
}

// Gate returns the request gate used by the handler so application routes
// can share it.
func (h *Handler) Gate() *middleware.Gate {
	return h.gate
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.engine.Register(r.Context(), inkauth.RegisterRequest{
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
		FullName: body.FullName,
		PenName:  body.PenName,
		Bio:      body.Bio,
	}, inkauth.DeviceFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setTokens(w, res.Tokens)
	middleware.WriteJSON(w, http.StatusCreated, envelope{Success: true, Data: newAuthView(res)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.engine.Login(r.Context(), body.Email, body.Password, inkauth.DeviceFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setTokens(w, res.Tokens)
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: newAuthView(res)})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var body refreshBody
		if !h.decode(w, r, &body) {
			return
		}
		token = body.RefreshToken
	}

	res, err := h.engine.Refresh(r.Context(), token, inkauth.DeviceFromContext(r.Context()))
	if err != nil {
		if inkauth.IsAuthenticationError(err) {
			middleware.ClearAuthCookies(w, h.secure)
		}
		h.writeError(w, err)
		return
	}
	middleware.SetAuthCookies(w, h.secure, res.AccessToken, res.AccessExpiresAt, res.RefreshToken, res.RefreshExpiresAt)
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: tokensView{
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		SessionID:        res.SessionID,
	}})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.Logout(r.Context(), p.Identity.ID, p.Token, p.SessionID()); err != nil {
		h.writeError(w, err)
		return
	}
	middleware.ClearAuthCookies(w, h.secure)
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out."})
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.LogoutAll(r.Context(), p.Identity.ID); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.RevokeAccessToken(r.Context(), p.Token); err != nil {
		h.writeError(w, err)
		return
	}
	middleware.ClearAuthCookies(w, h.secure)
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out of all sessions."})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var body changePasswordBody
	if !h.decode(w, r, &body) {
		return
	}
	err := h.engine.ChangePassword(r.Context(), p.Identity.ID, body.CurrentPassword, body.NewPassword)
	if err != nil {
		if inkauth.IsAuthenticationError(err) {
			middleware.ClearAuthCookies(w, h.secure)
		}
		h.writeError(w, err)
		return
	}
	// Every token is dead now, including the one on this request.
	middleware.ClearAuthCookies(w, h.secure)
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Message: "Password changed. Please sign in again."})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.engine.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Message: res.Message})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordBody
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), body.Email, body.Token, body.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}
	middleware.ClearAuthCookies(w, h.secure)
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Message: "Password has been reset. Please sign in."})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	ident, err := h.engine.VerifyEmail(r.Context(), r.URL.Query().Get(middleware.QueryTokenParam))
	if err != nil {
		h.writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: newUserView(ident)})
}

func (h *Handler) requestVerification(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.RequestEmailVerification(r.Context(), p.Identity.ID); err != nil {
		h.writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, envelope{Success: true, Message: "Verification email sent."})
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	list, err := h.engine.Sessions(r.Context(), p.Identity.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{
			SessionID:  s.SessionID,
			UserAgent:  s.UserAgent,
			IP:         s.IP,
			IssuedAt:   s.IssuedAt,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
			Current:    s.SessionID == p.SessionID(),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.RevokeSession(r.Context(), p.Identity.ID, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: newUserView(p.Identity)})
}

func (h *Handler) setTokens(w http.ResponseWriter, t inkauth.TokenPair) {
	middleware.SetAuthCookies(w, h.secure, t.AccessToken, t.AccessExpiresAt, t.RefreshToken, t.RefreshExpiresAt)
}

// decode reads a JSON body into dst. It writes a validation error and
// returns false when the body is unreadable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, fmt.Errorf("%w: malformed request body", inkauth.ErrValidation))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if status := inkauth.HTTPStatus(err); status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("auth request failed")
	}
	middleware.WriteError(w, err)
}
