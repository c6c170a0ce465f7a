// Package admin is the seam where the real admin HTTP surface (site and
// settings CRUD, the login form, persistent storage) plugs in. That
// surface is an external collaborator outside the core's scope: the core
// only ever reads Sites and GlobalConfig through siteconfig.Store. This
// package supplies just enough of a handler to answer the reserved admin
// paths with 401 until a real collaborator is wired in, so the standalone
// binary has somewhere to route /login, /logout, and /admin/*.
package admin

import "net/http"

// Handler answers every request with 401, matching the admin-unauthorized
// entry in the core's error taxonomy for paths delegated to the admin
// collaborator.
type Handler struct{}

// New returns a Handler.
func New() *Handler {
	return &Handler{}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="proxibase-admin"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
