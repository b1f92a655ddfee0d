package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/platform/config"
	"github.com/portalguard/portalguard/internal/platform/database"
	"github.com/portalguard/portalguard/internal/policy"
	"github.com/portalguard/portalguard/internal/rbac"
)

// policyLoader picks the configured policy source. The db source needs pool.
func policyLoader(cfg config.PolicyConfig, pool *database.Pool) (policy.Loader, error) {
	switch cfg.Source {
	case "", "default":
		return policy.StaticLoader(policy.DefaultDocument()), nil
	case "file":
		return policy.FileLoader(cfg.File), nil
	case "db":
		if pool == nil {
			return nil, fmt.Errorf("policy source db requires a database connection")
		}
		return policy.NewStore(pool, policy.DefaultExclusions()), nil
	default:
		return nil, fmt.Errorf("unknown policy source %q", cfg.Source)
	}
}

// seedPolicy writes doc to the database in one transaction, replacing the
// stored roles and rules.
func seedPolicy(ctx context.Context, pool *database.Pool, doc policy.Document) error {
	if _, err := access.Build(doc); err != nil {
		return fmt.Errorf("refusing to seed invalid policy: %w", err)
	}
	return database.WithTx(ctx, pool, func(ctx context.Context, q database.Querier) error {
		return policy.NewStore(q, doc.Exclusions).Save(ctx, doc)
	})
}

// watchReload rebuilds the engine on every SIGHUP until ctx is done. A failed
// reload keeps the engine in force. The evaluator guarding the internal API
// follows the engine's role model.
func watchReload(ctx context.Context, engines *access.Holder, loader policy.Loader, evaluator *rbac.Evaluator) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			reload(ctx, engines, loader, evaluator)
		}
	}
}

func reload(ctx context.Context, engines *access.Holder, loader policy.Loader, evaluator *rbac.Evaluator) {
	e, err := engines.Reload(ctx, loader)
	if err != nil {
		slog.Error("policy reload failed, keeping current policy", "error", err)
		return
	}
	if evaluator != nil {
		evaluator.SetModel(e.Model())
	}
	slog.Info("policy reloaded", "rules", e.Table().Len(), "roles", len(e.Model().Roles()))
}
