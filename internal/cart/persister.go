package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"go.uber.org/multierr"
)

const (
	snapshotPrefix = "cart:"
	anonSnapshot   = "cart:anon"
	// IdentityKey holds the last committed non-anonymous identity.
	IdentityKey = "userId"
	// TokenKey holds the current bearer credential written by the login flow.
	TokenKey = "authToken"
)

// Storage is a durable string key-value store. Get reports found=false for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SnapshotKey returns the storage key of the cart snapshot for identity.
func SnapshotKey(identity Identity) string {
	if identity.IsAnonymous() {
		return anonSnapshot
	}
	return snapshotPrefix + string(identity)
}

// Persister keeps durable cart snapshots. It never returns storage errors:
// failures are logged and the operation is treated as having had no effect.
type Persister struct {
	storage Storage
	logg    *logger.Logger
}

func NewPersister(storage Storage, logg *logger.Logger) *Persister {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Persister{storage: storage, logg: logg}
}

// Load returns the snapshot for identity. Missing, unreadable and malformed snapshots report ok=false.
func (p *Persister) Load(ctx context.Context, identity Identity) ([]Line, bool) {
	key := SnapshotKey(identity)
	raw, found, err := p.storage.Get(ctx, key)
	if err != nil {
		p.logg.WarnErr(p.logg.WithField(ctx, "key", key), "cart snapshot read failed", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	lines, err := DecodeLines([]byte(raw), time.Time{})
	if err != nil {
		p.logg.WarnErr(p.logg.WithField(ctx, "key", key), "discarding malformed cart snapshot", err)
		return nil, false
	}
	return lines, true
}

// Save writes the snapshot for state.Identity.
func (p *Persister) Save(ctx context.Context, state State) {
	key := SnapshotKey(state.Identity)
	payload, err := EncodeLines(state.Lines, CamelNaming)
	if err != nil {
		p.logg.WarnErr(p.logg.WithField(ctx, "key", key), "cart snapshot encode failed", err)
		return
	}
	if err := p.storage.Set(ctx, key, string(payload)); err != nil {
		p.logg.WarnErr(p.logg.WithField(ctx, "key", key), "cart snapshot write failed", err)
	}
}

// Delete removes the snapshots of every listed identity.
func (p *Persister) Delete(ctx context.Context, identities ...Identity) {
	var errs error
	seen := make(map[string]struct{}, len(identities))
	for _, identity := range identities {
		key := SnapshotKey(identity)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		errs = multierr.Append(errs, p.storage.Delete(ctx, key))
	}
	if errs != nil {
		p.logg.WarnErr(ctx, "cart snapshot delete failed", errs)
	}
}

// LoadIdentity returns the last committed identity, if one was stored.
func (p *Persister) LoadIdentity(ctx context.Context) (Identity, bool) {
	raw, found, err := p.storage.Get(ctx, IdentityKey)
	if err != nil {
		p.logg.WarnErr(ctx, "stored identity read failed", err)
		return Anonymous, false
	}
	if !found || raw == "" {
		return Anonymous, false
	}
	return Identity(raw), true
}

// SaveIdentity records identity as the last committed one; Anonymous removes the record.
func (p *Persister) SaveIdentity(ctx context.Context, identity Identity) {
	var err error
	if identity.IsAnonymous() {
		err = p.storage.Delete(ctx, IdentityKey)
	} else {
		err = p.storage.Set(ctx, IdentityKey, string(identity))
	}
	if err != nil {
		p.logg.WarnErr(ctx, "stored identity write failed", err)
	}
}
