// onehub-client is a terminal sync harness. It drives the full client tier,
// session cache, offline mirror and realtime reconciler, against the shared
// backends and renders the list it keeps in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"onehub/internal/modkit"
	"onehub/internal/modkit/repokit"
	"onehub/internal/platform/config"
	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	pstrings "onehub/internal/platform/strings"

	"onehub/internal/services/requirements/client"
	"onehub/internal/services/requirements/domain"
	reqmod "onehub/internal/services/requirements/module"
	"onehub/internal/services/requirements/session"
)

func main() {
	root := config.New()
	cliCfg := root.Prefix("CORE_CLIENT_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	rdCfg := root.Prefix("SERVICE_REDIS_")

	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(
		ctx,
		store.Config{
			AppName: "onehub-client",
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			},
			Redis: store.RedisConfig{
				Enabled: rdCfg.MayBool("ENABLED", true),
				URL:     rdCfg.MayString("URL", "redis://localhost:6379/0"),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// realtime delivery is the point of the harness; fail loudly without it
	if st.KV != nil {
		repokit.MustPing(ctx, "redis", st.KV)
	}

	deps := modkit.Deps{Log: *l, Cfg: cliCfg, PG: st.PG, KV: st.KV}
	ports := reqmod.New(deps).Ports().(reqmod.Ports)

	tenantID := cliCfg.MustString("TENANT_ID")
	cli, err := client.New(ports.Query, ports.Writer, st.KV, client.Config{
		TenantID:    tenantID,
		UserID:      cliCfg.MustString("USER_ID"),
		OfflinePath: cliCfg.MayString("OFFLINE_PATH", "onehub-client.db"),
		SnapshotTTL: cliCfg.MayDuration("SNAPSHOT_TTL", 24*time.Hour),
		Session: session.Config{
			TTL: cliCfg.MayDuration("SESSION_TTL", 30*time.Second),
		},
		OnNotice: func(ev domain.ChangeEvent) {
			l.Info().Str("id", ev.Record.ID).Msg("record you are editing changed remotely")
		},
	}, *l)
	if err != nil {
		l.Panic().Err(err).Msg("client setup failed")
	}
	defer func() { _ = cli.Close() }()

	go func() {
		if err := cli.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Warn().Err(err).Msg("realtime pump stopped")
		}
	}()

	d := domain.QueryDescriptor{
		TenantID: tenantID,
		PageSize: cliCfg.MayInt("PAGE_SIZE", domain.DefaultPageSize),
	}

	render := func() {
		v := cli.Use(ctx, d)
		if v.Err != nil {
			l.Warn().Err(v.Err).Msg("list unavailable")
			return
		}
		state := "live"
		switch {
		case v.Offline:
			state = "offline"
		case v.IsLoading:
			state = "refreshing"
		}
		fmt.Printf("\n[%s] %d requirements\n", state, len(v.Data.Rows))
		for _, r := range v.Data.Rows {
			fmt.Printf("  #%-6d %-10s %s\n", r.DisplayNumber, r.Status, pstrings.Truncate(r.Title, 48))
		}
	}

	render()
	tick := time.NewTicker(cliCfg.MayDuration("REFRESH", 5*time.Second))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			render()
		}
	}
}
