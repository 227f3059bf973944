// Package module wires the requirements service into the application
package module

import (
	"onehub/internal/modkit"
	"onehub/internal/modkit/httpkit"
	"onehub/internal/modkit/module"
	"onehub/internal/services/directory"
	"onehub/internal/services/requirements/audit"
	"onehub/internal/services/requirements/domain"
	"onehub/internal/services/requirements/pagecache"
	"onehub/internal/services/requirements/realtime"
	"onehub/internal/services/requirements/repo"
	"onehub/internal/services/requirements/service"
)

// Ports exposed by the requirements module
type Ports struct {
	Query    domain.QueryPort
	Record   domain.RecordPort
	Writer   domain.WriterPort
	Notifier domain.NotifierPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the requirements module
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	var cache domain.PageCachePort
	var notifier domain.NotifierPort
	if deps.KV != nil {
		cache = pagecache.New(deps.KV, opts.CacheTTL, deps.Log)
		notifier = realtime.NewNotifier(deps.KV)
	}

	svc := service.New(
		deps.PG,
		repo.NewPG(),
		cache,
		notifier,
		audit.New(deps.PG, deps.Log),
		service.Config{MaxPageSize: opts.MaxPageSize},
		deps.Log,
	)

	m := &Module{deps: deps}
	m.ports = Ports{Query: svc, Record: svc, Writer: svc, Notifier: notifier}
	return m
}

// Name implements modkit.Module
func (m *Module) Name() string { return "requirements" }

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	h := handlers{query: m.ports.Query, record: m.ports.Record, writer: m.ports.Writer}

	// the directory cache is registered during bootstrap; when absent the
	// detail view simply omits display names
	if dir, ok := module.PortsAs[directory.Ports]("directory"); ok {
		h.names = dir.Reader
	}

	httpkit.Get(r, "/requirements", h.list)
	httpkit.PostJSON(r, "/requirements", h.create)
	httpkit.Get(r, "/requirements/{id}", h.detail)
	httpkit.PutJSON(r, "/requirements/{id}", h.update)
	httpkit.PatchJSON(r, "/requirements/{id}", h.update)
	httpkit.Delete(r, "/requirements/{id}", h.remove)
}
