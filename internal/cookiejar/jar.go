// Package cookiejar implements the per-(site, session, origin host) cookie
// store: capture from Set-Cookie, render to Cookie, with
// read-your-writes within one tuple under concurrent requests.
package cookiejar

import (
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Tuple is the cookie jar's key: (site, session, origin_host).
type Tuple struct {
	SiteID     string
	SessionID  string
	OriginHost string
}

// CookieMap is a name->value map for one tuple.
type CookieMap map[string]string

// Store is the interface the engine uses to read and write cookie jar
// entries. MemStore is the in-process default; a persistent implementation
// can satisfy the same interface without the engine noticing
// Non-goals leave storage choice to the admin collaborator).
type Store interface {
	Get(t Tuple) CookieMap
	Store(t Tuple, setCookieLines []string)
}

// MemStore is an in-memory Store guarded by a per-tuple lock, sharded by key
// so unrelated tuples never contend.
type MemStore struct {
	mu      sync.Mutex
	entries map[Tuple]*entry
}

type entry struct {
	mu      sync.Mutex
	cookies CookieMap
}

// NewMemStore returns an empty in-memory cookie jar.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[Tuple]*entry)}
}

func (s *MemStore) entryFor(t Tuple) *entry {
	s.mu.Lock()
	e, ok := s.entries[t]
	if !ok {
		e = &entry{cookies: make(CookieMap)}
		s.entries[t] = e
	}
	s.mu.Unlock()
	return e
}

// Get returns a copy of the cookie map for t, or an empty map if absent.
func (s *MemStore) Get(t Tuple) CookieMap {
	s.mu.Lock()
	e, ok := s.entries[t]
	s.mu.Unlock()
	if !ok {
		return CookieMap{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(CookieMap, len(e.cookies))
	for k, v := range e.cookies {
		out[k] = v
	}
	return out
}

// Store parses each Set-Cookie header line, extracting name and value, and
// upserts into the tuple's map by name (last-write-wins). A value of empty
// string deletes that name, matching origin-initiated cookie deletion.
func (s *MemStore) Store(t Tuple, setCookieLines []string) {
	if len(setCookieLines) == 0 {
		return
	}
	e := s.entryFor(t)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, line := range setCookieLines {
		name, value, ok := parseSetCookie(line)
		if !ok {
			continue
		}
		if value == "" {
			delete(e.cookies, name)
			continue
		}
		e.cookies[name] = value
	}
}

// parseSetCookie extracts the name=value pair (before the first attribute
// separator) from a raw Set-Cookie header line. http.ParseSetCookie handles
// quoting/attribute edge cases the way net/http itself would parse them.
func parseSetCookie(line string) (name, value string, ok bool) {
	c, err := http.ParseSetCookie(line)
	if err != nil || c.Name == "" {
		return "", "", false
	}
	return c.Name, c.Value, true
}

// Render produces a stable "name1=val1; name2=val2" serialization, sorted
// by name; insertion order is not preserved.
func Render(m CookieMap) string {
	if len(m) == 0 {
		return ""
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(m[name])
	}
	return b.String()
}
