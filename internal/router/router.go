// Package router implements the single listener's three-way dispatch: the
// /health path on any host, every request whose Host is the admin host to
// the admin collaborator, and everything else to the proxy engine. The
// health check is matched by path and admin routing by comparing against
// one configured host, rather than by a host->handler map lookup.
package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// New builds the listener's root handler. adminHost may be empty, in
// which case no Host is ever routed to admin.
func New(adminHost string, adminHandler, proxyHandler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		host := stripPort(r.Host)
		if adminHost != "" && host == adminHost {
			adminHandler.ServeHTTP(w, r)
			return
		}

		proxyHandler.ServeHTTP(w, r)
	})
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i]
		}
	}
	return host
}
