// Command ratelimitctl is an operator tool for the rate-limit engine. It
// talks to the same Redis store the server uses, so changes take effect
// immediately without going through the HTTP admin endpoints.
//
// Usage:
//
//	ratelimitctl status -user <uuid>
//	ratelimitctl status -ip <addr>
//	ratelimitctl reset -user <uuid> [-scope <scope>]
//	ratelimitctl reset -ip <addr> [-scope <scope>]
//	ratelimitctl block-ip -ip <addr> [-duration 15m]
//	ratelimitctl unblock-ip -ip <addr>
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/calloway-labs/cvforge/internal"
	"github.com/calloway-labs/cvforge/internal/cache"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
	"github.com/calloway-labs/cvforge/internal/repository"
	"github.com/calloway-labs/cvforge/internal/service"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ratelimitctl <status|reset|block-ip|unblock-ip> [flags]")
	}

	cfg, err := internal.NewConfig()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required: ratelimitctl operates on the shared Redis store")
	}

	// Engine logs are noise here; keep stdout for command output.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := context.Background()
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	store := cache.NewRedis(client)

	switch args[0] {
	case "status":
		return runStatus(ctx, cfg, store, logger, args[1:])
	case "reset":
		return runReset(ctx, store, args[1:])
	case "block-ip":
		return runBlockIP(ctx, store, logger, args[1:])
	case "unblock-ip":
		return runUnblockIP(ctx, store, logger, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// identityFlags parses the -user / -ip pair shared by status and reset.
func identityFlags(fs *flag.FlagSet) (user, ip *string) {
	user = fs.String("user", "", "user ID (UUID)")
	ip = fs.String("ip", "", "client IP address")
	return user, ip
}

func resolveIdentity(user, ip string) (ratelimit.Identity, error) {
	if (user == "") == (ip == "") {
		return ratelimit.Identity{}, fmt.Errorf("provide exactly one of -user or -ip")
	}
	if user != "" {
		uid, err := uuid.Parse(user)
		if err != nil {
			return ratelimit.Identity{}, fmt.Errorf("invalid user ID: %w", err)
		}
		return ratelimit.Identity{UserID: uid.String()}, nil
	}
	return ratelimit.Anonymous(ip), nil
}

// runStatus prints the identity's quota snapshot as indented JSON. For a
// user the plan is looked up in the database so the limits match what the
// server enforces.
func runStatus(ctx context.Context, cfg *internal.Config, store cache.Store, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	user, ip := identityFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := resolveIdentity(*user, *ip)
	if err != nil {
		return err
	}

	if id.UserID != "" {
		db, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		userService := service.NewUserService(repository.New(db), logger)
		u, err := userService.GetByID(ctx, uuid.MustParse(id.UserID))
		if err != nil {
			return fmt.Errorf("user lookup failed: %w", err)
		}
		id.Tier = u.EffectivePlan()
	}

	reporter := ratelimit.NewStatusReporter(ratelimit.NewPolicy(), ratelimit.NewCounter(store), logger)
	status, err := reporter.Status(ctx, id, time.Now())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func runReset(ctx context.Context, store cache.Store, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	user, ip := identityFlags(fs)
	scope := fs.String("scope", "", "scope to reset (default: all scopes)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := resolveIdentity(*user, *ip)
	if err != nil {
		return err
	}

	scopes := ratelimit.Scopes()
	if *scope != "" {
		s := ratelimit.Scope(*scope)
		known := false
		for _, candidate := range ratelimit.Scopes() {
			if candidate == s {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown scope %q", *scope)
		}
		scopes = []ratelimit.Scope{s}
	}

	counter := ratelimit.NewCounter(store)
	for _, s := range scopes {
		existed, err := counter.Reset(ctx, id, s)
		if err != nil {
			return fmt.Errorf("reset %s: %w", s, err)
		}
		if existed {
			fmt.Printf("cleared %s\n", s)
		}
	}
	return nil
}

func runBlockIP(ctx context.Context, store cache.Store, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("block-ip", flag.ExitOnError)
	ip := fs.String("ip", "", "IP address to block")
	duration := fs.Duration("duration", 0, "block duration (default: engine default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ip == "" {
		return fmt.Errorf("-ip is required")
	}

	guard := ratelimit.NewIPGuard(store, ratelimit.DefaultIPGuardConfig(), logger)
	if err := guard.Block(ctx, *ip, *duration); err != nil {
		return err
	}
	fmt.Printf("blocked %s\n", *ip)
	return nil
}

func runUnblockIP(ctx context.Context, store cache.Store, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("unblock-ip", flag.ExitOnError)
	ip := fs.String("ip", "", "IP address to unblock")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ip == "" {
		return fmt.Errorf("-ip is required")
	}

	guard := ratelimit.NewIPGuard(store, ratelimit.DefaultIPGuardConfig(), logger)
	existed, err := guard.Unblock(ctx, *ip)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Printf("%s was not blocked\n", *ip)
		return nil
	}
	fmt.Printf("unblocked %s\n", *ip)
	return nil
}
