package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"
)

func (h *Handler) auditLoginFailed(ctx context.Context, ip net.IP, ua, identifier, reason string) {
	h.audit(ctx, "auth.login.failed", "", ip, ua,
		slog.String("identifier", identifier),
		slog.String("reason", reason),
	)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.login.success", userID, ip, ua)
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua, identifier string, retryAfter time.Duration) {
	h.audit(ctx, "auth.login.rate_limited", "", ip, ua,
		slog.String("identifier", identifier),
		slog.Int64("retry_after_s", int64(retryAfter.Seconds())),
	)
}

func (h *Handler) auditRegister(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.register", userID, ip, ua)
}

func (h *Handler) auditRefreshFailed(ctx context.Context, ip net.IP, ua string) {
	h.audit(ctx, "auth.refresh.failed", "", ip, ua)
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.logout_all", userID, ip, ua)
}

func (h *Handler) auditPasswordReset(ctx context.Context, ip net.IP, ua string) {
	h.audit(ctx, "auth.password_reset.completed", "", ip, ua)
}

// audit writes a security event to the audit logger.
func (h *Handler) audit(ctx context.Context, action, userID string, ip net.IP, ua string, extra ...slog.Attr) {
	if h == nil || h.auditLog == nil {
		return
	}
	attrs := make([]slog.Attr, 0, 4+len(extra))
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if ip != nil {
		attrs = append(attrs, slog.String("ip", ip.String()))
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	attrs = append(attrs, extra...)
	h.auditLog.LogAttrs(ctx, slog.LevelInfo, action, attrs...)
}
