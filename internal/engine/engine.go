// Package engine is the session/protocol core: it drives party one through
// the keygen, chain-code, signing, rotation, and recovery transitions, owns
// artifact persistence via internal/store, and mirrors finished/rotated
// master keys to internal/vault.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/partyone/tss-signer/internal/engineerr"
	"github.com/partyone/tss-signer/internal/store"
	"github.com/partyone/tss-signer/internal/vault"
)

// MasterKeyFetcher is the subset of *vault.Client the engine depends on,
// narrowed for testability.
type MasterKeyFetcher interface {
	ValidateToken(ctx context.Context, token string) error
	StoreMasterKey(ctx context.Context, token string, masterKey json.RawMessage) error
	FetchMasterKey(ctx context.Context, token string) (json.RawMessage, error)
}

// Engine coordinates the artifact store and vault client into the protocol
// transitions the HTTP surface dispatches to.
type Engine struct {
	store *store.Store
	vault MasterKeyFetcher
	log   *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(s *store.Store, v MasterKeyFetcher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: s,
		vault: v,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// NewSessionID mints a fresh, globally unique session id.
func NewSessionID() string { return uuid.NewString() }

// withSession serializes concurrent transitions against the same
// (user, sid) pair. This strengthens, but does not replace, the client's
// own responsibility to issue its calls strictly in order: it guards the
// read-modify-write store race between two in-flight requests, not
// cross-transition atomicity.
func (e *Engine) withSession(user, sid string, fn func() *engineerr.Error) *engineerr.Error {
	key := user + "_" + sid
	e.locksMu.Lock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	e.locksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (e *Engine) validateToken(ctx context.Context, token string) *engineerr.Error {
	if err := e.vault.ValidateToken(ctx, token); err != nil {
		if errors.Is(err, vault.ErrUnauthorized) {
			return engineerr.New(engineerr.Unauthorized, "vault rejected token")
		}
		return engineerr.Wrap(engineerr.UpstreamFailure, "vault token validation failed", err)
	}
	return nil
}

// storeErr classifies a store failure into the right engineerr.Kind:
// ErrNotFound maps to NotFound, anything else (including a degraded store)
// maps to StoreDegraded, since the local store is the only dependency that
// fails this way.
func storeErr(message string, err error) *engineerr.Error {
	if errors.Is(err, store.ErrNotFound) {
		return engineerr.Wrap(engineerr.NotFound, message, err)
	}
	return engineerr.Wrap(engineerr.StoreDegraded, message, err)
}

// withSessionResult is withSession generalized to transitions that produce
// a response value, so call sites don't need an out-of-band variable to
// smuggle the result past the closure.
func withSessionResult[T any](e *Engine, user, sid string, fn func() (T, *engineerr.Error)) (T, *engineerr.Error) {
	var result T
	eerr := e.withSession(user, sid, func() *engineerr.Error {
		r, eerr := fn()
		if eerr != nil {
			return eerr
		}
		result = r
		return nil
	})
	if eerr != nil {
		var zero T
		return zero, eerr
	}
	return result, nil
}

// upstreamErr wraps a vault-client failure as an engineerr.UpstreamFailure.
func (e *Engine) upstreamErr(op string, err error) *engineerr.Error {
	return engineerr.Wrap(engineerr.UpstreamFailure, op+" failed", err)
}

// mustMarshal serializes v to JSON. It only panics on a bug in this
// package's own types (an unmarshalable field), never on caller input.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("engine: failed to marshal internal artifact: " + err.Error())
	}
	return data
}
