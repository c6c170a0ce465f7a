package proxyengine

import (
	"context"
	"log/slog"
	"time"
)

// requestLog accumulates the fields of the one structured log record
// emitted per completed proxy request.
type requestLog struct {
	ClientIP   string
	MirrorHost string
	OriginURL  string
	UserAgent  string
}

// finish emits the record at the level implied by status, and with the
// reason string attached as an extra "reason" attribute (empty on the
// happy path, since the status code and message already say enough).
func (rec requestLog) finish(logger *slog.Logger, status int, start time.Time, reason string) {
	rec.finishAt(logger, levelForStatus(status), status, start, reason)
}

// finishWarn emits the record at WARNING regardless of status. Rate-limit
// and SSRF-guard denials are WARNING-level events even though the SSRF
// guard answers with a 502, which would otherwise read as ERROR.
func (rec requestLog) finishWarn(logger *slog.Logger, status int, start time.Time, reason string) {
	rec.finishAt(logger, slog.LevelWarn, status, start, reason)
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (rec requestLog) finishAt(logger *slog.Logger, level slog.Level, status int, start time.Time, reason string) {
	if logger == nil {
		return
	}
	latencyMS := time.Since(start).Milliseconds()

	attrs := []any{
		slog.String("client_ip", rec.ClientIP),
		slog.String("mirror_host", rec.MirrorHost),
		slog.String("origin_url", rec.OriginURL),
		slog.Int("status_code", status),
		slog.Int64("latency_ms", latencyMS),
		slog.String("user_agent", rec.UserAgent),
	}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}

	logger.Log(context.Background(), level, "proxy request", attrs...)
}
