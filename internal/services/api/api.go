// Package api composes the HTTP API for the application
package api

import (
	"time"

	"onehub/internal/platform/config"
	"onehub/internal/platform/logger"
	phttp "onehub/internal/platform/net/http"
	"onehub/internal/platform/store"

	"onehub/internal/modkit"
	"onehub/internal/modkit/httpkit"
	"onehub/internal/modkit/module"
	"onehub/internal/modkit/repokit"

	"onehub/internal/services/directory"
	"onehub/internal/services/meta"
	reqmod "onehub/internal/services/requirements/module"
)

// Options are the API options
type Options struct {
	Config      config.Conf
	Store       *store.Store
	Logger      *logger.Logger
	ServiceName string
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	log := *opt.Logger

	// shared deps for modules
	deps := modkit.Deps{
		Log: log,
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		KV:  opt.Store.KV,
	}

	// the directory cache is not a routed module; it is registered so other
	// modules can look the reader up by name instead of importing postgres
	if deps.PG != nil {
		dirCfg := opt.Config.Prefix("DIRECTORY_")
		dir := directory.New(
			repokit.MustBind(directory.NewPG(), deps.PG),
			directory.Config{
				MaxEntries: dirCfg.MayInt("MAX_ENTRIES", 1024),
				TTL:        dirCfg.MayDuration("TTL", 10*time.Minute),
			},
			log,
		)
		module.Register("directory", directory.Ports{Reader: dir})
	}

	var pgPing meta.Pinger
	if p, ok := any(deps.PG).(meta.Pinger); ok {
		pgPing = p
	}
	var kvPing meta.Pinger
	if deps.KV != nil {
		kvPing = deps.KV
	}

	mods := []modkit.Module{
		meta.New(opt.ServiceName, pgPing, kvPing),
		reqmod.New(deps),
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})
}
