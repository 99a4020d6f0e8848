package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"oauth-connect/internal/routes"

	"golang.org/x/oauth2"
)

var ErrUnknownResourceOwner = errors.New("unknown resource owner")

// Descriptor is one configured resource owner together with the firewall
// check path its login callbacks land on.
type Descriptor struct {
	Name      string
	CheckPath string // absolute URL, absolute path, or route name
	Owner     ResourceOwner
}

// URLGenerator builds URLs for named routes.
type URLGenerator interface {
	Generate(name string, params map[string]string, absolute bool) (string, error)
}

// Registry holds the firewall's resource owners in configuration order and
// allows lookup by name. It performs no auth logic itself.
type Registry struct {
	owners []Descriptor
	index  map[string]int
	router URLGenerator
}

// NewRegistry registers the given descriptors. Names must be unique.
func NewRegistry(router URLGenerator, list ...Descriptor) (*Registry, error) {
	r := &Registry{
		owners: make([]Descriptor, 0, len(list)),
		index:  make(map[string]int, len(list)),
		router: router,
	}
	for _, d := range list {
		if d.Owner == nil {
			return nil, fmt.Errorf("resource owner %q has no client", d.Name)
		}
		if d.Name == "" {
			d.Name = d.Owner.Name()
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("resource owner %q registered twice", d.Name)
		}
		r.index[d.Name] = len(r.owners)
		r.owners = append(r.owners, d)
	}
	return r, nil
}

// List returns the descriptors in configuration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.owners))
	copy(out, r.owners)
	return out
}

func (r *Registry) ByName(name string) (Descriptor, error) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownResourceOwner, name)
	}
	return r.owners[i], nil
}

// AuthorizationURL builds the provider URL a login or connect link points
// to. In connect mode the provider calls back the connect_service route,
// otherwise the descriptor's check path.
func (r *Registry) AuthorizationURL(
	d Descriptor,
	connect bool,
	req *http.Request,
	state string,
	opts ...oauth2.AuthCodeOption,
) (string, error) {
	var (
		redirectURI string
		err         error
	)
	if connect {
		redirectURI, err = r.router.Generate(routes.ConnectService, map[string]string{"service": d.Name}, true)
	} else {
		redirectURI, err = r.CheckURL(d, req)
	}
	if err != nil {
		return "", err
	}
	return d.Owner.AuthorizationURL(redirectURI, state, opts...), nil
}

// CheckURL resolves the descriptor's check path to an absolute URL.
func (r *Registry) CheckURL(d Descriptor, req *http.Request) (string, error) {
	path := d.CheckPath

	if path != "" && !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "http") {
		generated, err := r.router.Generate(path, nil, true)
		if err != nil {
			return "", err
		}
		path = generated
	}

	if !strings.HasPrefix(path, "http") {
		path = BaseURL(req) + path
	}

	return path, nil
}

// BaseURL derives scheme://host for req, honouring X-Forwarded-Proto.
func BaseURL(req *http.Request) string {
	scheme := "https"
	if req.TLS == nil {
		if strings.HasPrefix(req.Host, "localhost") || strings.HasPrefix(req.Host, "127.0.0.1") {
			scheme = "http"
		}
	}
	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + req.Host
}
