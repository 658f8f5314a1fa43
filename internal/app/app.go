// Package app assembles the runtime shared by the CLI and the API server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"operador/internal/agents"
	"operador/internal/auth"
	"operador/internal/clock"
	"operador/internal/config"
	"operador/internal/db"
	"operador/internal/domain"
	"operador/internal/engine"
	"operador/internal/locks"
	"operador/internal/migrate"
	"operador/internal/repo"
)

type Runtime struct {
	DB       *sql.DB
	Repo     repo.Repo
	Engine   engine.Engine
	Agents   agents.Service
	Accounts auth.Accounts
	Config   *config.Config
	Log      *zap.Logger

	redis *redis.Client
}

// Open connects the workspace database, applies migrations and wires the
// engine with the configured clock, lock backend and agent completer.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rt, err := build(ctx, conn, cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rt, nil
}

func build(ctx context.Context, conn *sql.DB, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	clk, err := clock.Load(cfg.Clock.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	r := repo.New(conn)
	eng := engine.New(r, cfg.Missions)
	eng.Clock = clk
	eng.Log = log.Named("engine")

	rt := &Runtime{DB: conn, Repo: r, Config: cfg, Log: log}
	if cfg.Redis.Addr != "" {
		client, err := locks.DialRedis(ctx, locks.RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return nil, err
		}
		rt.redis = client
		eng.Locks = &locks.Redis{
			Client: client,
			Prefix: "operador:lock:",
			TTL:    time.Duration(cfg.Redis.LockTTLSeconds) * time.Second,
			Log:    log.Named("locks"),
		}
		log.Info("using redis locks", zap.String("addr", cfg.Redis.Addr))
	}
	rt.Engine = eng

	rt.Agents = agents.Service{Store: r, Now: clk.Now, Log: log.Named("agents")}
	if cfg.Agents.APIKey != "" {
		completer, err := agents.NewGenAI(ctx, cfg.Agents.APIKey, cfg.Agents.Model)
		if err != nil {
			return nil, err
		}
		rt.Agents.Completer = completer
	}
	rt.Accounts = auth.Accounts{
		Users:    r,
		Missions: eng,
		Tokens:   auth.Tokens{Secret: cfg.Auth.JWTSecret, TTL: cfg.TokenTTL(), Now: clk.Now},
		Now:      clk.Now,
	}
	return rt, nil
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	errs = append(errs, rt.DB.Close())
	return errors.Join(errs...)
}

type userStore interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	CreateUser(ctx context.Context, u domain.User, evt domain.Event) (domain.User, error)
}

// EnsureUser makes sure the user row and its missions exist, stamping a new
// row with now. It is safe to call on every start.
func EnsureUser(ctx context.Context, users userStore, missions auth.MissionSeeder, userID int64, email string, now time.Time) error {
	if _, err := users.GetUser(ctx, userID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		u := domain.User{ID: userID, Email: email, Role: "admin", CreatedAt: now.UTC().Format(time.RFC3339)}
		if _, err := users.CreateUser(ctx, u, domain.Event{}); err != nil && !errors.Is(err, repo.ErrConflict) {
			return fmt.Errorf("create user %d: %w", userID, err)
		}
	}
	if _, err := missions.InitializeUser(ctx, userID); err != nil && !errors.Is(err, engine.ErrAlreadyInitialized) {
		return fmt.Errorf("initialize missions: %w", err)
	}
	return nil
}

// EnsureDefaultUser runs EnsureUser for the configured single-mode identity.
func (rt *Runtime) EnsureDefaultUser(ctx context.Context) error {
	return EnsureUser(ctx, rt.Repo, rt.Engine, rt.Config.Auth.DefaultUserID, rt.Config.Auth.DefaultEmail, rt.Engine.Clock.Now())
}
