package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/metrics"
)

// IPGuardConfig tunes the identity-agnostic per-IP abuse protection.
//
// The minute counter stops growing once RequestsPerMinute rejects further
// requests, so SuspiciousThreshold only fires when it is configured at or
// below RequestsPerMinute; with the defaults the auto-block never triggers
// and blocking is operator-driven via Block.
type IPGuardConfig struct {
	RequestsPerMinute   int
	RequestsPerHour     int
	SuspiciousThreshold int // per-minute count that triggers an explicit block
	BlockDuration       time.Duration
}

// DefaultIPGuardConfig mirrors the long-standing production limits.
func DefaultIPGuardConfig() IPGuardConfig {
	return IPGuardConfig{
		RequestsPerMinute:   60,
		RequestsPerHour:     1000,
		SuspiciousThreshold: 100,
		BlockDuration:       15 * time.Minute,
	}
}

// IPVerdict is the outcome of one IP-guard evaluation.
//
// Blocked means the IP carries an explicit block flag and must be rejected
// with an access-denied error, distinct from a plain rate-limit rejection.
type IPVerdict struct {
	Allowed   bool
	Blocked   bool
	Limit     int // per-minute limit, for response headers
	Remaining int
	ResetAt   time.Time
}

// IPGuard maintains per-IP minute and hour sliding counters plus an
// explicit block flag, all independent of authentication and plan tier.
// It runs as a pre-filter: a blocked IP never reaches plan-based
// throttling.
type IPGuard struct {
	store  cache.Store
	cfg    IPGuardConfig
	logger *slog.Logger
}

// NewIPGuard creates an IPGuard. Zero-valued config fields fall back to
// the defaults.
func NewIPGuard(store cache.Store, cfg IPGuardConfig, logger *slog.Logger) *IPGuard {
	def := DefaultIPGuardConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = def.RequestsPerHour
	}
	if cfg.SuspiciousThreshold <= 0 {
		cfg.SuspiciousThreshold = def.SuspiciousThreshold
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	return &IPGuard{store: store, cfg: cfg, logger: logger}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

func minuteKey(ip string) string {
	return "ratelimit:ip:" + ip + ":minute"
}

func hourKey(ip string) string {
	return "ratelimit:ip:" + ip + ":hour"
}

// Check evaluates one request from ip at time now.
//
// Order matters: the block flag is consulted first and unconditionally
// rejects; then the minute window, then the hour window. Counters are only
// appended to when the request is allowed.
func (g *IPGuard) Check(ctx context.Context, ip string, now time.Time) (*IPVerdict, error) {
	blocked, err := g.store.HasFlag(ctx, blockKey(ip))
	if err != nil {
		return nil, fmt.Errorf("ipguard check block: %w", err)
	}
	if blocked {
		g.logger.Warn("blocked IP attempted access", "ip", ip)
		return &IPVerdict{Blocked: true, Limit: g.cfg.RequestsPerMinute}, nil
	}

	minute, err := g.store.GetTimes(ctx, minuteKey(ip))
	if err != nil {
		return nil, fmt.Errorf("ipguard load minute window: %w", err)
	}
	minute = prune(minute, now, time.Minute)

	if len(minute) >= g.cfg.RequestsPerMinute {
		// Far above the normal cap means abuse; set an explicit block so
		// subsequent requests are rejected before any counting happens.
		if len(minute) >= g.cfg.SuspiciousThreshold {
			if err := g.Block(ctx, ip, g.cfg.BlockDuration); err != nil {
				return nil, err
			}
			g.logger.Error("suspicious activity detected, IP blocked",
				"ip", ip,
				"requests_per_minute", len(minute),
				"block_duration", g.cfg.BlockDuration,
			)
		}
		return &IPVerdict{
			Allowed:   false,
			Limit:     g.cfg.RequestsPerMinute,
			Remaining: 0,
			ResetAt:   now.Add(time.Minute),
		}, nil
	}

	hour, err := g.store.GetTimes(ctx, hourKey(ip))
	if err != nil {
		return nil, fmt.Errorf("ipguard load hour window: %w", err)
	}
	hour = prune(hour, now, time.Hour)

	if len(hour) >= g.cfg.RequestsPerHour {
		return &IPVerdict{
			Allowed:   false,
			Limit:     g.cfg.RequestsPerMinute,
			Remaining: 0,
			ResetAt:   now.Add(time.Hour),
		}, nil
	}

	minute = append(minute, now)
	hour = append(hour, now)

	if err := g.store.SetTimes(ctx, minuteKey(ip), minute, time.Minute); err != nil {
		return nil, fmt.Errorf("ipguard store minute window: %w", err)
	}
	if err := g.store.SetTimes(ctx, hourKey(ip), hour, time.Hour); err != nil {
		return nil, fmt.Errorf("ipguard store hour window: %w", err)
	}

	return &IPVerdict{
		Allowed:   true,
		Limit:     g.cfg.RequestsPerMinute,
		Remaining: max(0, g.cfg.RequestsPerMinute-len(minute)),
		ResetAt:   now.Add(time.Minute),
	}, nil
}

// IsBlocked reports whether ip currently carries a block flag.
func (g *IPGuard) IsBlocked(ctx context.Context, ip string) (bool, error) {
	blocked, err := g.store.HasFlag(ctx, blockKey(ip))
	if err != nil {
		return false, fmt.Errorf("ipguard is blocked: %w", err)
	}
	return blocked, nil
}

// Block sets an explicit block flag for ip. Operator action or automatic
// suspicious-activity response.
func (g *IPGuard) Block(ctx context.Context, ip string, duration time.Duration) error {
	if duration <= 0 {
		duration = g.cfg.BlockDuration
	}
	if err := g.store.SetFlag(ctx, blockKey(ip), duration); err != nil {
		return fmt.Errorf("ipguard block: %w", err)
	}
	metrics.IPBlocked()
	g.logger.Warn("IP blocked", "ip", ip, "duration", duration)
	return nil
}

// Unblock removes the block flag for ip. Returns true when a block existed.
func (g *IPGuard) Unblock(ctx context.Context, ip string) (bool, error) {
	ok, err := g.store.Delete(ctx, blockKey(ip))
	if err != nil {
		return false, fmt.Errorf("ipguard unblock: %w", err)
	}
	if ok {
		g.logger.Info("IP unblocked", "ip", ip)
	}
	return ok, nil
}
