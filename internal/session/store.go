package session

import (
	"context"
	"encoding/json"
	"time"
)

// Session is the server-side state behind the session cookie. Anonymous
// visitors get one too: the connect flows keep pending state in Values
// before anyone is logged in.
type Session struct {
	SessionID         string                     `json:"session_id"`
	UserID            string                     `json:"user_id,omitempty"`  // empty while anonymous
	Firewall          string                     `json:"firewall,omitempty"` // firewall the user authenticated against
	Roles             []string                   `json:"roles,omitempty"`
	Values            map[string]json.RawMessage `json:"values,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	AbsoluteExpiresAt time.Time                  `json:"absolute_expires_at"`
	ExpiresAt         time.Time                  `json:"expires_at"`
}

// Authenticated reports whether the session carries a user for firewall.
func (s *Session) Authenticated(firewall string) bool {
	return s.UserID != "" && s.Firewall == firewall
}

func (s *Session) clone() *Session {
	c := *s
	c.Roles = append([]string(nil), s.Roles...)
	if s.Values != nil {
		c.Values = make(map[string]json.RawMessage, len(s.Values))
		for k, v := range s.Values {
			c.Values[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist or has expired.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
