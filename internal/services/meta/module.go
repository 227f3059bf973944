// Package meta serves health, readiness and version endpoints
package meta

import (
	"context"
	"net/http"
	"time"

	"onehub/internal/core/version"
	"onehub/internal/modkit/httpkit"
	"onehub/internal/platform/timeutil"
)

// Pinger is satisfied by store adapters that expose Ping
type Pinger interface {
	Ping(context.Context) error
}

// Module implements modkit.Module
type Module struct {
	serviceName string
	startedAt   time.Time
	pg          Pinger
	kv          Pinger
}

// New constructs the meta module
func New(serviceName string, pg, kv Pinger) *Module {
	return &Module{
		serviceName: serviceName,
		startedAt:   timeutil.UTC(timeutil.Now()),
		pg:          pg,
		kv:          kv,
	}
}

// Name implements modkit.Module
func (m *Module) Name() string { return "meta" }

// Ports implements modkit.Module
func (m *Module) Ports() any { return nil }

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.Get(r, "/meta/health", m.health)
	httpkit.Get(r, "/meta/ready", m.ready)
	httpkit.Get(r, "/meta/version", m.metaVersion)
}

type healthBody struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Started string `json:"started"`
	Now     string `json:"now"`
}

type readyCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readyBody struct {
	OK     bool         `json:"ok"`
	Checks []readyCheck `json:"checks"`
}

func (m *Module) health(_ *http.Request) (any, error) {
	return healthBody{
		OK:      true,
		Service: m.serviceName,
		Started: m.startedAt.Format(time.RFC3339),
		Now:     timeutil.UTC(timeutil.Now()).Format(time.RFC3339),
	}, nil
}

func (m *Module) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := readyBody{OK: true}
	for _, dep := range []struct {
		name string
		p    Pinger
	}{{"pg", m.pg}, {"redis", m.kv}} {
		check := readyCheck{Name: dep.name, Status: "ok"}
		if dep.p == nil {
			check.Status = "skipped"
		} else if err := dep.p.Ping(ctx); err != nil {
			check.Status = "fail"
			check.Error = err.Error()
			body.OK = false
		}
		body.Checks = append(body.Checks, check)
	}

	resp := httpkit.OK(body)
	if !body.OK {
		resp.Status = http.StatusServiceUnavailable
	}
	return resp, nil
}

func (m *Module) metaVersion(_ *http.Request) (any, error) {
	return version.Get(), nil
}
