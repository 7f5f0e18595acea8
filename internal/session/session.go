// Package session issues and validates expiring login tokens persisted in an
// embedded bbolt file. Expired entries are purged lazily by every operation.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"classattend/internal/apperr"
	"classattend/internal/metrics"
)

// Token lifetimes.
const (
	ShortTTL    = 24 * time.Hour
	RememberTTL = 30 * 24 * time.Hour
)

var bucket = []byte("sessions")

// ErrInvalid is wrapped by lookups of unknown, expired or revoked tokens.
var ErrInvalid = errors.New("session invalid or expired")

// Snapshot is the user record captured when the token was issued.
type Snapshot struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
}

// Session is a stored token.
type Session struct {
	Token     string    `json:"-"`
	Username  string    `json:"username"`
	User      Snapshot  `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Remember  bool      `json:"remember"`
}

// Active reports whether s is usable at now.
func (s Session) Active(now time.Time) bool { return now.Before(s.ExpiresAt) }

// Store is a bbolt-backed token store.
type Store struct {
	db      *bbolt.DB
	timeout time.Duration
	now     func() time.Time
}

// Open opens (or creates) the store at path. timeout bounds the file lock
// and every later operation.
func Open(path string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open session store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &Store{db: db, timeout: timeout, now: time.Now}, nil
}

// Close releases the file.
func (s *Store) Close() error { return s.db.Close() }

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

type result[T any] struct {
	val T
	err error
}

// update executes fn in an update transaction bounded by the store timeout.
// Expired entries are purged first. fn's value only reaches the caller
// through the result channel; on timeout the caller gets an error and
// whatever fn commits afterwards stands.
func update[T any](ctx context.Context, s *Store, op string, fn func(b *bbolt.Bucket, now time.Time) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		var r result[T]
		r.err = s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(bucket)
			now := s.now()
			if err := purge(b, now); err != nil {
				return err
			}
			v, err := fn(b, now)
			r.val = v
			return err
		})
		done <- r
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			if apperr.KindOf(r.err) == apperr.KindUnknown {
				return zero, apperr.Storage(op, r.err)
			}
			return zero, r.err
		}
		return r.val, nil
	case <-ctx.Done():
		return zero, apperr.Storage(op, ctx.Err())
	}
}

func purge(b *bbolt.Bucket, now time.Time) error {
	var expired [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var sess Session
		if err := json.Unmarshal(v, &sess); err != nil || !sess.Active(now) {
			expired = append(expired, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range expired {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func newToken(username, userID string, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(username))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Issue creates a token for username valid for RememberTTL or ShortTTL.
func (s *Store) Issue(ctx context.Context, username string, snap Snapshot, remember bool) (Session, error) {
	const op = "session.Issue"
	if username == "" {
		return Session{}, apperr.Validation(op, "username required")
	}
	out, err := update(ctx, s, op, func(b *bbolt.Bucket, now time.Time) (Session, error) {
		token, err := newToken(username, snap.UserID, now)
		if err != nil {
			return Session{}, err
		}
		ttl := ShortTTL
		if remember {
			ttl = RememberTTL
		}
		sess := Session{Token: token, Username: username, User: snap, CreatedAt: now, ExpiresAt: now.Add(ttl), Remember: remember}
		data, err := json.Marshal(sess)
		if err != nil {
			return Session{}, err
		}
		return sess, b.Put([]byte(token), data)
	})
	if err != nil {
		return Session{}, err
	}
	metrics.SessionsIssued.Inc()
	return out, nil
}

// Validate returns the session for token if it exists and has not expired.
func (s *Store) Validate(ctx context.Context, token string) (Session, error) {
	const op = "session.Validate"
	// a miss must still commit the purge, so it is not returned as an error here
	out, err := update(ctx, s, op, func(b *bbolt.Bucket, now time.Time) (*Session, error) {
		v := b.Get([]byte(token))
		if v == nil {
			return nil, nil
		}
		var sess Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return nil, err
		}
		if !sess.Active(now) {
			return nil, nil
		}
		return &sess, nil
	})
	if err != nil {
		return Session{}, err
	}
	if out == nil {
		return Session{}, apperr.E(apperr.KindNotFound, op, ErrInvalid)
	}
	out.Token = token
	return *out, nil
}

// Revoke deletes token. Revoking an unknown token is not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	_, err := update(ctx, s, "session.Revoke", func(b *bbolt.Bucket, _ time.Time) (struct{}, error) {
		return struct{}{}, b.Delete([]byte(token))
	})
	return err
}

// LatestForUser returns the most recently issued active session of username.
func (s *Store) LatestForUser(ctx context.Context, username string) (Session, error) {
	const op = "session.LatestForUser"
	out, err := update(ctx, s, op, func(b *bbolt.Bucket, _ time.Time) (*Session, error) {
		var latest *Session
		err := b.ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return nil
			}
			if sess.Username == username && (latest == nil || sess.CreatedAt.After(latest.CreatedAt)) {
				sess.Token = string(k)
				latest = &sess
			}
			return nil
		})
		return latest, err
	})
	if err != nil {
		return Session{}, err
	}
	if out == nil {
		return Session{}, apperr.E(apperr.KindNotFound, op, ErrInvalid)
	}
	return *out, nil
}

// deleteWhere removes every entry match accepts and returns how many went.
func deleteWhere(b *bbolt.Bucket, match func(sess Session) bool) (int, error) {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var sess Session
		if json.Unmarshal(v, &sess) == nil && match(sess) {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// RevokeUser deletes every session of username and returns how many were removed.
func (s *Store) RevokeUser(ctx context.Context, username string) (int, error) {
	return update(ctx, s, "session.RevokeUser", func(b *bbolt.Bucket, _ time.Time) (int, error) {
		return deleteWhere(b, func(sess Session) bool { return sess.Username == username })
	})
}

// RevokeAll deletes every stored session and returns how many were removed.
func (s *Store) RevokeAll(ctx context.Context) (int, error) {
	return update(ctx, s, "session.RevokeAll", func(b *bbolt.Bucket, _ time.Time) (int, error) {
		return deleteWhere(b, func(Session) bool { return true })
	})
}

// Count returns the number of active sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	return update(ctx, s, "session.Count", func(b *bbolt.Bucket, _ time.Time) (int, error) {
		n := 0
		err := b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
		return n, err
	})
}
