package service

import (
	"context"
	"log/slog"
	"time"

	"atlas-auth/internal/event"
	"atlas-auth/internal/tenant"
)

// TokenSweeper periodically deletes expired refresh tokens in the default
// namespace and in every tenant namespace.
type TokenSweeper struct {
	schemas       SchemaStore
	scoper        Scoper
	tokens        RefreshTokenStore
	defaultSchema tenant.Namespace
	interval      time.Duration
	bus           event.Bus
	logger        *slog.Logger
}

func NewTokenSweeper(schemas SchemaStore, scoper Scoper, tokens RefreshTokenStore, defaultSchema tenant.Namespace, interval time.Duration, bus event.Bus, logger *slog.Logger) *TokenSweeper {
	if bus == nil {
		bus = event.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSweeper{
		schemas:       schemas,
		scoper:        scoper,
		tokens:        tokens,
		defaultSchema: defaultSchema,
		interval:      interval,
		bus:           bus,
		logger:        logger,
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *TokenSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce visits every namespace and returns the total number of removed
// tokens. Failures in one namespace do not stop the others.
func (s *TokenSweeper) SweepOnce(ctx context.Context) int64 {
	namespaces := []tenant.Namespace{s.defaultSchema}

	names, err := s.schemas.List(ctx)
	if err != nil {
		s.logger.Error("list tenants for token sweep failed", "error", err)
	}
	for _, name := range names {
		ns, err := tenant.Parse(name, "")
		if err != nil || ns == s.defaultSchema {
			continue
		}
		namespaces = append(namespaces, ns)
	}

	var total int64
	for _, ns := range namespaces {
		var removed int64
		err := s.scoper.Scope(ctx, ns, func(ctx context.Context) error {
			n, err := s.tokens.DeleteExpired(ctx)
			removed = n
			return err
		})
		if err != nil {
			s.logger.Error("token sweep failed", "tenant", ns.String(), "error", err)
			continue
		}
		if removed > 0 {
			s.logger.Info("expired refresh tokens removed", "tenant", ns.String(), "count", removed)
			s.bus.Publish(event.New(event.TypeRefreshTokensSwept, ns.String(), "", map[string]int64{"count": removed}))
		}
		total += removed
	}
	return total
}
