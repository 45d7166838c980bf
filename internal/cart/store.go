package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/shopspring/decimal"
)

// StoreParams wires the collaborators of a Store.
type StoreParams struct {
	Persistence *Persister
	// Sync is optional; a nil Scheduler keeps the cart local only.
	Sync   Scheduler
	Logger *logger.Logger
	Now    func() time.Time
	// Identity is the identity the Store starts under.
	Identity Identity
	// RestoreIdentity resumes under the last committed identity when one is stored.
	RestoreIdentity bool
}

// Store owns the in-memory cart and the current identity. Every mutation is
// persisted under the current identity before it returns and, for a signed-in
// identity, schedules a debounced remote push. Mutations never perform network I/O.
type Store struct {
	mu       sync.Mutex
	identity Identity
	lines    []Line

	persister *Persister
	sync      Scheduler
	logg      *logger.Logger
	now       func() time.Time
}

func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	if params.Persistence == nil {
		return nil, errors.New("cart persister required")
	}
	if params.Sync == nil {
		params.Sync = noopScheduler{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	identity := params.Identity
	if params.RestoreIdentity {
		if stored, ok := params.Persistence.LoadIdentity(ctx); ok {
			identity = stored
		}
	}
	lines, _ := params.Persistence.Load(ctx, identity)

	return &Store{
		identity:  identity,
		lines:     lines,
		persister: params.Persistence,
		sync:      params.Sync,
		logg:      params.Logger,
		now:       params.Now,
	}, nil
}

// AddLine adds quantity of (product, pack). An existing line accumulates the
// quantity and takes instructions only when they are not blank. A quantity
// below one or a product without id changes nothing.
func (s *Store) AddLine(ctx context.Context, product Product, pack DosePack, quantity int, deliveryDate, instructions string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 || product.ID.IsZero() {
		return cloneLines(s.lines)
	}

	lines := cloneLines(s.lines)
	key := LineKey{ProductID: product.ID, PackID: pack.ID}
	if i := indexOf(lines, key); i >= 0 {
		lines[i].Quantity += quantity
		if strings.TrimSpace(instructions) != "" {
			lines[i].SpecialInstructions = instructions
		}
	} else {
		if strings.TrimSpace(instructions) == "" {
			instructions = ""
		}
		lines = append(lines, Line{
			Product:               product,
			DosePack:              pack,
			Quantity:              quantity,
			RequestedDeliveryDate: deliveryDate,
			SpecialInstructions:   instructions,
		})
	}
	return s.commitLocked(ctx, lines)
}

// RemoveLine deletes the line if present.
func (s *Store) RemoveLine(ctx context.Context, productID, packID ID) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, LineKey{ProductID: productID, PackID: packID})
}

// SetQuantity sets the quantity exactly; a quantity below one removes the line.
func (s *Store) SetQuantity(ctx context.Context, productID, packID ID, quantity int) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := LineKey{ProductID: productID, PackID: packID}
	if quantity < 1 {
		return s.removeLocked(ctx, key)
	}
	return s.updateLocked(ctx, key, func(l *Line) { l.Quantity = quantity })
}

// SetDeliveryDate stores date verbatim. Callers pass a DateLayout date; the
// remote endpoint rejects the whole push when any line carries a malformed one.
func (s *Store) SetDeliveryDate(ctx context.Context, productID, packID ID, date string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, LineKey{ProductID: productID, PackID: packID}, func(l *Line) {
		l.RequestedDeliveryDate = date
	})
}

func (s *Store) SetInstructions(ctx context.Context, productID, packID ID, text string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, LineKey{ProductID: productID, PackID: packID}, func(l *Line) {
		l.SpecialInstructions = text
	})
}

// Clear empties the cart and deletes the current and anonymous snapshots.
// A signed-in cart still pushes the empty state so the server copy is cleared too.
func (s *Store) Clear(ctx context.Context) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []Line{}
	s.persister.Delete(ctx, s.identity, Anonymous)
	s.sync.Schedule(s.stateLocked())
	return []Line{}
}

// ReplaceFromRemote overwrites the cart with the server's lines. Nothing is
// merged and nothing is pushed back; the anonymous snapshot is dropped as stale.
// A push still pending from an earlier mutation is discarded, not sent.
func (s *Store) ReplaceFromRemote(ctx context.Context, remote []RemoteLine) []Line {
	lines := ProjectLines(remote, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sync.Cancel()
	s.lines = lines
	s.persister.Delete(ctx, Anonymous)
	s.persister.Save(ctx, s.stateLocked())
	s.logg.Debug(s.logg.WithField(s.logCtx(ctx), "lines", len(lines)), "cart replaced from remote")
	return cloneLines(lines)
}

// TransitionIdentity moves the cart to next. Signing in from anonymous merges
// the anonymous cart into the stored one once; signing out keeps the lines
// under the anonymous snapshot. Switching directly between two identities
// loads the new identity's own snapshot without merging.
func (s *Store) TransitionIdentity(ctx context.Context, next Identity) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.identity
	switch {
	case prev == next:
		return cloneLines(s.lines)

	case prev.IsAnonymous():
		user, _ := s.persister.Load(ctx, next)
		anon, ok := s.persister.Load(ctx, Anonymous)
		if !ok {
			anon = s.lines
		}
		merged := mergeLogin(user, anon)
		s.persister.Delete(ctx, Anonymous)

		s.identity = next
		s.lines = merged
		s.persister.SaveIdentity(ctx, next)
		s.persister.Save(ctx, s.stateLocked())
		s.sync.Schedule(s.stateLocked())
		s.logg.Info(s.logg.WithField(s.logCtx(ctx), "lines", len(merged)), "signed in, anonymous cart merged")

	case next.IsAnonymous():
		s.sync.Cancel()
		s.identity = Anonymous
		s.persister.SaveIdentity(ctx, Anonymous)
		s.persister.Save(ctx, s.stateLocked())
		s.logg.Info(s.logg.WithField(s.logCtx(ctx), "previous", string(prev)), "signed out")

	default:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"from": string(prev), "to": string(next)}),
			"identity switched without sign-out; loading stored cart without merge")
		s.sync.Cancel()
		lines, _ := s.persister.Load(ctx, next)
		s.identity = next
		s.lines = lines
		s.persister.SaveIdentity(ctx, next)
		s.persister.Save(ctx, s.stateLocked())
	}
	return cloneLines(s.lines)
}

// Flush sends a pending remote push immediately.
func (s *Store) Flush(ctx context.Context) {
	s.sync.Flush(ctx)
}

// Close cancels any pending remote push.
func (s *Store) Close() {
	s.sync.Close()
}

func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines)
}

func (s *Store) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// TotalQuantity sums the quantity of every line.
func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, l := range s.lines {
		total += l.Quantity
	}
	return total
}

// Subtotal prices every line by its dose pack; unpriced packs count as zero.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, l := range s.lines {
		if !l.DosePack.Price.Valid {
			continue
		}
		total = total.Add(l.DosePack.Price.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (s *Store) removeLocked(ctx context.Context, key LineKey) []Line {
	i := indexOf(s.lines, key)
	if i < 0 {
		return cloneLines(s.lines)
	}
	lines := make([]Line, 0, len(s.lines)-1)
	lines = append(lines, s.lines[:i]...)
	lines = append(lines, s.lines[i+1:]...)
	return s.commitLocked(ctx, lines)
}

func (s *Store) updateLocked(ctx context.Context, key LineKey, apply func(*Line)) []Line {
	i := indexOf(s.lines, key)
	if i < 0 {
		return cloneLines(s.lines)
	}
	lines := cloneLines(s.lines)
	apply(&lines[i])
	return s.commitLocked(ctx, lines)
}

// commitLocked installs lines, persists them under the current identity and schedules a push.
func (s *Store) commitLocked(ctx context.Context, lines []Line) []Line {
	s.lines = lines
	state := s.stateLocked()
	s.persister.Save(ctx, state)
	s.sync.Schedule(state)
	return cloneLines(lines)
}

func (s *Store) stateLocked() State {
	return State{Identity: s.identity, Lines: cloneLines(s.lines)}
}

func (s *Store) logCtx(ctx context.Context) context.Context {
	return s.logg.WithIdentity(ctx, string(s.identity))
}

func indexOf(lines []Line, key LineKey) int {
	for i, l := range lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

type noopScheduler struct{}

func (noopScheduler) Schedule(State)        {}
func (noopScheduler) Cancel()               {}
func (noopScheduler) Flush(context.Context) {}
func (noopScheduler) Close()                {}
