package connect

import (
	"context"
	"time"

	"oauth-connect/internal/auth"

	"golang.org/x/oauth2"
)

type EntryKind string

const (
	KindRegistrationError EntryKind = "registration_error"
	KindAccessToken       EntryKind = "access_token"
)

const (
	registrationPrefix = "_oauth.registration_error."
	confirmationPrefix = "_oauth.connect_confirmation."
)

// PendingLinkEntry is one in-flight link attempt.
type PendingLinkEntry struct {
	Key       string                      `json:"key"`
	Kind      EntryKind                   `json:"kind"`
	Error     *auth.AccountNotLinkedError `json:"error,omitempty"`
	Token     *oauth2.Token               `json:"token,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// PendingLinkStore keeps link attempts in the session under namespaced keys.
// Entries are never evicted here; they live as long as the session does.
type PendingLinkStore struct {
	sess Session
}

func NewPendingLinkStore(sess Session) *PendingLinkStore {
	return &PendingLinkStore{sess: sess}
}

func (s *PendingLinkStore) SaveRegistrationError(
	ctx context.Context,
	key string,
	e *auth.AccountNotLinkedError,
	createdAt time.Time,
) error {
	return s.put(ctx, registrationPrefix, PendingLinkEntry{
		Key:       key,
		Kind:      KindRegistrationError,
		Error:     e,
		CreatedAt: createdAt,
	})
}

// TakeRegistrationEntry removes and returns the entry under key. A missing
// entry yields nil without error.
func (s *PendingLinkStore) TakeRegistrationEntry(ctx context.Context, key string) (*PendingLinkEntry, error) {
	entry, err := s.get(ctx, registrationPrefix, key)
	if err != nil {
		return nil, err
	}
	if err := s.sess.Remove(ctx, registrationPrefix+key); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PendingLinkStore) SaveAccessToken(ctx context.Context, key string, token *oauth2.Token, createdAt time.Time) error {
	return s.put(ctx, confirmationPrefix, PendingLinkEntry{
		Key:       key,
		Kind:      KindAccessToken,
		Token:     token,
		CreatedAt: createdAt,
	})
}

// AccessToken returns the token awaiting confirmation under key, or nil.
// The entry stays in place so the confirmation can be retried.
func (s *PendingLinkStore) AccessToken(ctx context.Context, key string) (*oauth2.Token, error) {
	entry, err := s.get(ctx, confirmationPrefix, key)
	if err != nil || entry == nil || entry.Kind != KindAccessToken {
		return nil, err
	}
	return entry.Token, nil
}

func (s *PendingLinkStore) put(ctx context.Context, prefix string, e PendingLinkEntry) error {
	return s.sess.Set(ctx, prefix+e.Key, e)
}

func (s *PendingLinkStore) get(ctx context.Context, prefix, key string) (*PendingLinkEntry, error) {
	var e PendingLinkEntry
	ok, err := s.sess.Get(ctx, prefix+key, &e)
	if err != nil || !ok {
		return nil, err
	}
	return &e, nil
}
