package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// audit logs a security-relevant outcome with the caller's network identity.
// Secrets never reach attrs.
func (h *Handler) audit(r *http.Request, action string, attrs ...any) {
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	base := []any{"action", action}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		base = append(base, "ip", ip.String())
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		base = append(base, "user_agent", ua)
	}
	h.log.LogAttrs(r.Context(), slog.LevelInfo, "audit", slog.Group("audit", append(base, attrs...)...))
}
