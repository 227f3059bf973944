package httpkit

import (
	"net/http"

	perr "onehub/internal/platform/errors"
	pnet "onehub/internal/platform/net"
)

// Tenant returns the authenticated tenant (account) id from the request context
func Tenant(r *http.Request) (string, error) {
	tid := pnet.TenantID(r.Context())
	if tid == "" {
		return "", perr.Unauthorizedf("missing tenant scope")
	}
	return tid, nil
}

// User returns the authenticated user id from the request context
func User(r *http.Request) (string, error) {
	uid := pnet.UserID(r.Context())
	if uid == "" {
		return "", perr.Unauthorizedf("missing bearer token")
	}
	return uid, nil
}
