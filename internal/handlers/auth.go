package handlers

import (
	"log/slog"
	"net/http"

	"github.com/diewo77/devispro/httpx"
	"github.com/diewo77/devispro/internal/services"
)

type AuthHandler struct {
	svc    *services.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *services.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.svc.Register(r.Context(), in)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"token": sess.Token, "user": sess.User.View()})
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user logged in", "user_id", sess.User.ID)
	httpx.OK(w, map[string]any{"token": sess.Token, "user": sess.User.View()})
}

// Me handles GET /api/user and GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	u, err := h.svc.CurrentUser(r.Context(), uid)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"user": u.View()})
}

// Credits handles GET /api/credits.
func (h *AuthHandler) Credits(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	u, err := h.svc.CurrentUser(r.Context(), uid)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{
		"credits":          u.Credits,
		"subscriptionTier": u.SubscriptionTier,
		"unlimited":        u.Unlimited(),
	})
}
