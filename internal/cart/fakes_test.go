package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var errStorageDown = errors.New("storage unavailable")

type storageOp struct {
	op  string
	key string
}

type fakeStorage struct {
	mu   sync.Mutex
	data map[string]string
	ops  []storageOp
	fail bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{data: map[string]string{}}
}

func (f *fakeStorage) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", false, errStorageDown
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStorage) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStorageDown
	}
	f.ops = append(f.ops, storageOp{op: "set", key: key})
	f.data[key] = value
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStorageDown
	}
	f.ops = append(f.ops, storageOp{op: "delete", key: key})
	delete(f.data, key)
	return nil
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeStorage) value(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key]
}

func (f *fakeStorage) resetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

func (f *fakeStorage) recorded() []storageOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storageOp(nil), f.ops...)
}

func (f *fakeStorage) seed(identity Identity, lines ...Line) {
	payload, err := EncodeLines(lines, CamelNaming)
	if err != nil {
		panic(err)
	}
	f.data[SnapshotKey(identity)] = string(payload)
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireAll runs every armed timer, as if the debounce window elapsed.
func (c *fakeClock) fireAll() {
	for _, t := range c.active() {
		t.fired = true
		t.fn()
	}
}

type pushCall struct {
	token string
	lines []Line
}

type recordingPusher struct {
	mu    sync.Mutex
	calls []pushCall
	err   error
}

func (p *recordingPusher) Push(_ context.Context, token string, lines []Line) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pushCall{token: token, lines: cloneLines(lines)})
	return p.err
}

func (p *recordingPusher) pushes() []pushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushCall(nil), p.calls...)
}

type staticTokens string

func (t staticTokens) Token(context.Context) string { return string(t) }

type harness struct {
	storage *fakeStorage
	clock   *fakeClock
	pusher  *recordingPusher
	syncer  *Syncer
	now     time.Time
}

func newHarness(token string) *harness {
	h := &harness{
		storage: newFakeStorage(),
		clock:   &fakeClock{},
		pusher:  &recordingPusher{},
		now:     time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC),
	}
	syncer, err := NewSyncer(SyncerParams{Pusher: h.pusher, Tokens: staticTokens(token)})
	if err != nil {
		panic(err)
	}
	syncer.afterFunc = h.clock.AfterFunc
	h.syncer = syncer
	return h
}

func (h *harness) store(identity Identity) *Store {
	s, err := NewStore(context.Background(), StoreParams{
		Persistence: NewPersister(h.storage, nil),
		Sync:        h.syncer,
		Now:         func() time.Time { return h.now },
		Identity:    identity,
	})
	if err != nil {
		panic(err)
	}
	return s
}

func product(id string) Product {
	return Product{ID: ID(id), Name: "Vaccine " + id}
}

func pack(id string, price string) DosePack {
	p := DosePack{ID: ID(id), Doses: 10}
	if price != "" {
		p.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	return p
}

func line(productID, packID string, qty int, date string) Line {
	return Line{
		Product:               product(productID),
		DosePack:              pack(packID, ""),
		Quantity:              qty,
		RequestedDeliveryDate: date,
	}
}

func quantities(lines []Line) map[LineKey]int {
	out := make(map[LineKey]int, len(lines))
	for _, l := range lines {
		out[l.Key()] = l.Quantity
	}
	return out
}
