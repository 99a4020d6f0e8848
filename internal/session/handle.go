package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Token is what an authenticated session carries about its user.
type Token struct {
	UserID   string
	Firewall string
	Roles    []string
}

type Options struct {
	TTL    time.Duration
	Cookie CookieOptions
	Now    func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Handle binds one stored Session to the current request. The session is
// only written to the store (and the cookie only issued) once something is
// set, so anonymous read-only traffic creates nothing.
type Handle struct {
	store Store
	w     http.ResponseWriter
	opts  Options
	s     *Session
}

// Load returns the handle for r. An unknown, expired or missing cookie
// yields an empty, not yet persisted session.
func Load(ctx context.Context, store Store, w http.ResponseWriter, r *http.Request, opts Options) (*Handle, error) {
	h := &Handle{store: store, w: w, opts: opts}

	if id := ReadCookie(r, opts.Cookie); id != "" {
		s, err := store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("session: load: %w", err)
		}
		if s != nil && opts.now().Before(s.ExpiresAt) {
			h.s = s
			return h, nil
		}
		if s != nil {
			_ = store.Delete(ctx, id)
		}
	}

	h.s = &Session{}
	return h, nil
}

func (h *Handle) ID() string { return h.s.SessionID }

func (h *Handle) UserID() string { return h.s.UserID }

func (h *Handle) Roles() []string { return append([]string(nil), h.s.Roles...) }

func (h *Handle) Authenticated(firewall string) bool {
	return h.s.Authenticated(firewall)
}

// Get decodes the value stored under key into v.
func (h *Handle) Get(_ context.Context, key string, v any) (bool, error) {
	raw, ok := h.s.Values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("session: decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and persists the session.
func (h *Handle) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", key, err)
	}
	if h.s.Values == nil {
		h.s.Values = make(map[string]json.RawMessage)
	}
	h.s.Values[key] = raw
	return h.save(ctx)
}

// Remove deletes key. Removing an absent key is a no-op.
func (h *Handle) Remove(ctx context.Context, key string) error {
	if _, ok := h.s.Values[key]; !ok {
		return nil
	}
	delete(h.s.Values, key)
	return h.save(ctx)
}

// Login upgrades the session to an authenticated one. The session id is
// rotated so an id handed out before login cannot be reused afterwards.
func (h *Handle) Login(ctx context.Context, t Token) error {
	if t.UserID == "" || t.Firewall == "" {
		return fmt.Errorf("session: login requires user and firewall")
	}

	if h.s.SessionID != "" {
		if err := h.store.Delete(ctx, h.s.SessionID); err != nil {
			return fmt.Errorf("session: rotate: %w", err)
		}
		h.s.SessionID = ""
	}

	h.s.UserID = t.UserID
	h.s.Firewall = t.Firewall
	h.s.Roles = append([]string(nil), t.Roles...)
	return h.save(ctx)
}

// Logout deletes the session and clears the cookie.
func (h *Handle) Logout(ctx context.Context) error {
	if h.s.SessionID != "" {
		if err := h.store.Delete(ctx, h.s.SessionID); err != nil {
			return err
		}
	}
	h.s = &Session{}
	ClearCookie(h.w, h.opts.Cookie)
	return nil
}

func (h *Handle) save(ctx context.Context) error {
	if h.s.SessionID != "" {
		return h.store.Update(ctx, *h.s)
	}

	id, err := GenerateID()
	if err != nil {
		return err
	}

	now := h.opts.now()
	h.s.SessionID = id
	h.s.CreatedAt = now
	h.s.AbsoluteExpiresAt = now.Add(h.opts.TTL)
	h.s.ExpiresAt = h.s.AbsoluteExpiresAt

	if err := h.store.Create(ctx, *h.s); err != nil {
		h.s.SessionID = ""
		return err
	}

	SetCookie(h.w, id, h.s.ExpiresAt, h.opts.Cookie)
	return nil
}
