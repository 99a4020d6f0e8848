// Package routes names every HTTP route so handlers and redirects never
// hand-build paths.
package routes

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	Connect                    = "connect"
	ConnectRegistration        = "connect_registration"
	ConnectRegistrationSuccess = "connect_registration_success"
	ConnectService             = "connect_service"
	LoginCheck                 = "login_check"
	Login                      = "login"
	Logout                     = "logout"
	Home                       = "home"
)

// Table maps route names to gin-style path patterns (":param").
type Table struct {
	baseURL string
	paths   map[string]string
}

func Default(baseURL string) *Table {
	return New(baseURL, map[string]string{
		Connect:                    "/connect",
		ConnectRegistration:        "/connect/registration",
		ConnectRegistrationSuccess: "/connect/registration/success",
		ConnectService:             "/connect/service/:service",
		LoginCheck:                 "/login/check/:provider",
		Login:                      "/login",
		Logout:                     "/logout",
		Home:                       "/",
	})
}

func New(baseURL string, paths map[string]string) *Table {
	return &Table{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   paths,
	}
}

// Path returns the raw pattern for name, for route registration.
func (t *Table) Path(name string) string {
	return t.paths[name]
}

// Generate fills path parameters from params; leftover params become the
// query string. absolute prefixes the configured public base URL.
func (t *Table) Generate(name string, params map[string]string, absolute bool) (string, error) {
	pattern, ok := t.paths[name]
	if !ok {
		return "", fmt.Errorf("routes: unknown route %q", name)
	}

	used := make(map[string]bool, len(params))
	segments := strings.Split(pattern, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		key := seg[1:]
		v, ok := params[key]
		if !ok || v == "" {
			return "", fmt.Errorf("routes: missing parameter %q for route %q", key, name)
		}
		segments[i] = url.PathEscape(v)
		used[key] = true
	}
	path := strings.Join(segments, "/")

	keys := make([]string, 0, len(params))
	for k := range params {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		q := url.Values{}
		for _, k := range keys {
			q.Set(k, params[k])
		}
		path += "?" + q.Encode()
	}

	if absolute {
		return t.baseURL + path, nil
	}
	return path, nil
}
