package cart

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLineMergesDuplicateKeys(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)
	ctx := context.Background()

	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "keep cold")
	s.AddLine(ctx, product("p1"), pack("k2", ""), 1, "2024-02-01", "")
	s.AddLine(ctx, product("p1"), pack("k1", ""), 3, "2024-03-01", "  ")
	lines := s.AddLine(ctx, product("p2"), pack("k1", ""), 1, "2024-02-01", "")

	require.Len(t, lines, 3)
	assert.Equal(t, LineKey{"p1", "k1"}, lines[0].Key())
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, "keep cold", lines[0].SpecialInstructions, "blank instructions must not replace existing ones")
	assert.Equal(t, "2024-02-01", lines[0].RequestedDeliveryDate)

	lines = s.AddLine(ctx, product("p1"), pack("k1", ""), 1, "", "deliver before noon")
	assert.Equal(t, 6, lines[0].Quantity)
	assert.Equal(t, "deliver before noon", lines[0].SpecialInstructions)
	assert.Equal(t, LineKey{"p1", "k2"}, lines[1].Key(), "order must stay stable")
}

func TestAddLineIgnoresNonPositiveQuantity(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)

	assert.Empty(t, s.AddLine(context.Background(), product("p1"), pack("k1", ""), 0, "2024-02-01", ""))
	assert.Empty(t, s.AddLine(context.Background(), product("p1"), pack("k1", ""), -2, "2024-02-01", ""))
	assert.Empty(t, s.AddLine(context.Background(), Product{}, pack("k1", ""), 2, "2024-02-01", ""))
	assert.Empty(t, h.storage.recorded(), "rejected additions must not be persisted")
}

func TestAddLineStoresBlankInstructionsAsEmpty(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)

	lines := s.AddLine(context.Background(), product("p1"), pack("k1", ""), 1, "2024-02-01", "   ")
	require.Len(t, lines, 1)
	assert.Equal(t, "", lines[0].SpecialInstructions)
}

func TestSetDeliveryDateStoresValueVerbatim(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)
	ctx := context.Background()
	s.AddLine(ctx, product("p1"), pack("k1", ""), 1, "2024-02-01", "")

	lines := s.SetDeliveryDate(ctx, "p1", "k1", "next week")
	require.Len(t, lines, 1)
	assert.Equal(t, "next week", lines[0].RequestedDeliveryDate)
}

func TestSetQuantityBelowOneRemovesLine(t *testing.T) {
	for _, qty := range []int{0, -4} {
		h := newHarness("")
		s := h.store(Anonymous)
		ctx := context.Background()
		s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")
		s.AddLine(ctx, product("p2"), pack("k1", ""), 2, "2024-02-01", "")

		lines := s.SetQuantity(ctx, "p1", "k1", qty)
		require.Len(t, lines, 1)
		assert.Equal(t, ID("p2"), lines[0].Product.ID)
	}
}

func TestSetQuantityIsExact(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)
	ctx := context.Background()
	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")

	lines := s.SetQuantity(ctx, "p1", "k1", 7)
	assert.Equal(t, 7, lines[0].Quantity)
}

func TestUpdatesOnMissingLineAreNoops(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)
	ctx := context.Background()
	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")
	h.storage.resetOps()

	s.RemoveLine(ctx, "p9", "k1")
	s.SetQuantity(ctx, "p1", "k9", 3)
	s.SetDeliveryDate(ctx, "p9", "k9", "2024-05-05")
	lines := s.SetInstructions(ctx, "p9", "k1", "fragile")

	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Empty(t, h.storage.recorded())
}

func TestSingleFieldUpdates(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)
	ctx := context.Background()
	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")

	s.SetDeliveryDate(ctx, "p1", "k1", "2024-04-04")
	lines := s.SetInstructions(ctx, "p1", "k1", "call on arrival")

	assert.Equal(t, "2024-04-04", lines[0].RequestedDeliveryDate)
	assert.Equal(t, "call on arrival", lines[0].SpecialInstructions)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestEveryMutationPersistsUnderCurrentIdentity(t *testing.T) {
	h := newHarness("")
	s := h.store(Anonymous)
	s.AddLine(context.Background(), product("p1"), pack("k1", ""), 2, "2024-02-01", "")

	assert.Equal(t, []storageOp{{op: "set", key: "cart:anon"}}, h.storage.recorded())
}

func TestLoginMergeSumsQuantityAndKeepsUserMetadata(t *testing.T) {
	h := newHarness("tok")
	user := line("p1", "k1", 2, "2024-02-01")
	user.SpecialInstructions = "user note"
	anon := line("p1", "k1", 3, "2024-03-03")
	anon.SpecialInstructions = "anon note"
	h.storage.seed("u1", user, line("p3", "k1", 1, "2024-02-01"))
	h.storage.seed(Anonymous, anon, line("p2", "k2", 4, "2024-02-02"))

	s := h.store(Anonymous)
	lines := s.TransitionIdentity(context.Background(), "u1")

	require.Len(t, lines, 3)
	assert.Equal(t, LineKey{"p1", "k1"}, lines[0].Key())
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, "2024-02-01", lines[0].RequestedDeliveryDate)
	assert.Equal(t, "user note", lines[0].SpecialInstructions)
	assert.Equal(t, LineKey{"p3", "k1"}, lines[1].Key())
	assert.Equal(t, LineKey{"p2", "k2"}, lines[2].Key())

	assert.Equal(t, Identity("u1"), s.Identity())
	assert.False(t, h.storage.has("cart:anon"), "anonymous snapshot must be deleted after merge")
	assert.Equal(t, "u1", h.storage.value(IdentityKey))

	stored, ok := NewPersister(h.storage, nil).Load(context.Background(), "u1")
	require.True(t, ok)
	assert.Equal(t, quantities(lines), quantities(stored))
}

func TestLoginWritesOnlyUnderNewIdentity(t *testing.T) {
	h := newHarness("tok")
	h.storage.seed(Anonymous, line("p1", "k1", 1, "2024-02-01"))
	s := h.store(Anonymous)
	h.storage.resetOps()

	s.TransitionIdentity(context.Background(), "u1")

	for _, op := range h.storage.recorded() {
		if op.op == "set" {
			assert.NotEqual(t, "cart:anon", op.key, "merge must never persist under the old identity")
		}
	}
	var sets int
	for _, op := range h.storage.recorded() {
		if op.op == "set" && op.key == "cart:u1" {
			sets++
		}
	}
	assert.Equal(t, 1, sets, "merged cart is persisted exactly once")
}

func TestLoginFallsBackToInMemoryCartWithoutAnonymousSnapshot(t *testing.T) {
	h := newHarness("tok")
	h.storage.seed("u1", line("p1", "k1", 2, "2024-02-01"))
	s := h.store(Anonymous)
	s.AddLine(context.Background(), product("p1"), pack("k1", ""), 1, "2024-02-10", "")
	s.AddLine(context.Background(), product("p2"), pack("k1", ""), 1, "2024-02-10", "")
	require.NoError(t, h.storage.Delete(context.Background(), "cart:anon"))

	lines := s.TransitionIdentity(context.Background(), "u1")

	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 3, {"p2", "k1"}: 1}, quantities(lines))
}

func TestLoginMergeIsOneShot(t *testing.T) {
	h := newHarness("tok")
	h.storage.seed("u1", line("p1", "k1", 2, "2024-02-01"))
	h.storage.seed(Anonymous, line("p1", "k1", 3, "2024-02-01"))
	ctx := context.Background()

	s := h.store(Anonymous)
	first := s.TransitionIdentity(ctx, "u1")
	second := s.TransitionIdentity(ctx, "u1")
	assert.Equal(t, quantities(first), quantities(second))

	// a fresh session that logs in again finds no anonymous snapshot to re-add
	again := h.store(Anonymous)
	third := again.TransitionIdentity(ctx, "u1")
	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 5}, quantities(third))
}

func TestLoginSchedulesPushOfMergedCart(t *testing.T) {
	h := newHarness("tok")
	h.storage.seed(Anonymous, line("p1", "k1", 3, "2024-02-01"))
	s := h.store(Anonymous)

	s.TransitionIdentity(context.Background(), "u1")
	h.clock.fireAll()

	pushes := h.pusher.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "tok", pushes[0].token)
	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 3}, quantities(pushes[0].lines))
}

func TestLogoutKeepsLinesUnderAnonymousSnapshot(t *testing.T) {
	h := newHarness("tok")
	ctx := context.Background()
	s := h.store(Anonymous)
	s.TransitionIdentity(ctx, "u1")
	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")
	userSnapshot := h.storage.value("cart:u1")

	lines := s.TransitionIdentity(ctx, Anonymous)
	h.clock.fireAll()

	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 2}, quantities(lines))
	assert.Equal(t, Anonymous, s.Identity())
	assert.Equal(t, userSnapshot, h.storage.value("cart:u1"), "user snapshot stays untouched")
	assert.False(t, h.storage.has(IdentityKey))

	anon, ok := NewPersister(h.storage, nil).Load(ctx, Anonymous)
	require.True(t, ok)
	assert.Equal(t, quantities(lines), quantities(anon))
	assert.Empty(t, h.pusher.pushes(), "logout cancels the pending push")
}

func TestSwitchingIdentityLoadsWithoutMerge(t *testing.T) {
	h := newHarness("tok")
	ctx := context.Background()
	h.storage.seed("u2", line("p9", "k9", 1, "2024-02-01"))
	s := h.store(Anonymous)
	s.TransitionIdentity(ctx, "u1")
	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")
	h.storage.resetOps()

	lines := s.TransitionIdentity(ctx, "u2")
	h.clock.fireAll()

	assert.Equal(t, map[LineKey]int{{"p9", "k9"}: 1}, quantities(lines))
	assert.Equal(t, Identity("u2"), s.Identity())
	for _, op := range h.storage.recorded() {
		assert.NotEqual(t, "cart:anon", op.key)
		assert.NotEqual(t, "cart:u1", op.key)
	}
	assert.Empty(t, h.pusher.pushes(), "switching identities must not push u1's cart")
}

func TestReplaceFromRemoteIsFullOverride(t *testing.T) {
	h := newHarness("tok")
	ctx := context.Background()
	s := h.store(Anonymous)
	s.AddLine(ctx, product("p1"), pack("k1", ""), 1, "2024-02-01", "")
	s.TransitionIdentity(ctx, "u1")
	s.AddLine(ctx, product("p2"), pack("k2", ""), 1, "2024-02-01", "")
	h.storage.seed(Anonymous, line("p7", "k7", 1, "2024-02-01"))

	lines := s.ReplaceFromRemote(ctx, []RemoteLine{
		{"product": json.RawMessage(`{"id": 5, "name": "Rabies"}`), "dose_pack": json.RawMessage(`12`), "quantity": json.RawMessage(`2`)},
	})

	require.Len(t, lines, 1)
	assert.Equal(t, LineKey{"5", "12"}, lines[0].Key())
	assert.Equal(t, "Rabies", lines[0].Product.Name)
	assert.False(t, h.storage.has("cart:anon"))

	stored, ok := NewPersister(h.storage, nil).Load(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, quantities(lines), quantities(stored))

	h.clock.fireAll()
	assert.Empty(t, h.pusher.pushes(), "server state is not pushed back and the pending push is cancelled")
}

func TestReplaceFromRemoteAcceptsBothNamings(t *testing.T) {
	h := newHarness("")
	s := h.store("u1")

	lines := s.ReplaceFromRemote(context.Background(), []RemoteLine{
		{
			"product":               json.RawMessage(`"p1"`),
			"dosePack":              json.RawMessage(`{"id": "k1", "doses": 25, "price": "19.90"}`),
			"quantity":              json.RawMessage(`1`),
			"requestedDeliveryDate": json.RawMessage(`"2024-02-20"`),
			"specialInstructions":   json.RawMessage(`"camel"`),
		},
		{
			"product_id":              json.RawMessage(`7`),
			"dose_pack_id":            json.RawMessage(`3`),
			"quantity":                json.RawMessage(`4`),
			"requested_delivery_date": json.RawMessage(`"2024-02-21"`),
			"special_instructions":    json.RawMessage(`"snake"`),
		},
	})

	require.Len(t, lines, 2)
	assert.Equal(t, LineKey{"p1", "k1"}, lines[0].Key())
	assert.Equal(t, 25, lines[0].DosePack.Doses)
	assert.Equal(t, "2024-02-20", lines[0].RequestedDeliveryDate)
	assert.Equal(t, "camel", lines[0].SpecialInstructions)
	assert.Equal(t, LineKey{"7", "3"}, lines[1].Key())
	assert.Equal(t, "2024-02-21", lines[1].RequestedDeliveryDate)
	assert.Equal(t, "snake", lines[1].SpecialInstructions)
}

func TestReplaceFromRemoteDefaultsDeliveryDate(t *testing.T) {
	h := newHarness("")
	s := h.store("u1")

	lines := s.ReplaceFromRemote(context.Background(), []RemoteLine{
		{"product": json.RawMessage(`"P"`), "dose_pack": json.RawMessage(`"K"`), "quantity": json.RawMessage(`1`)},
	})

	require.Len(t, lines, 1)
	assert.Equal(t, "2024-01-13", lines[0].RequestedDeliveryDate)
	assert.Equal(t, "", lines[0].SpecialInstructions)
}

func TestReplaceFromRemoteDropsInvalidLinesAndCollapsesDuplicates(t *testing.T) {
	h := newHarness("")
	s := h.store("u1")

	lines := s.ReplaceFromRemote(context.Background(), []RemoteLine{
		{"product": json.RawMessage(`"p1"`), "dose_pack": json.RawMessage(`"k1"`), "quantity": json.RawMessage(`2`)},
		{"product": json.RawMessage(`"p2"`), "dose_pack": json.RawMessage(`"k1"`), "quantity": json.RawMessage(`0`)},
		{"dose_pack": json.RawMessage(`"k1"`), "quantity": json.RawMessage(`3`)},
		{"product": json.RawMessage(`[1,2]`), "quantity": json.RawMessage(`3`)},
		{"product": json.RawMessage(`"p1"`), "dosePack": json.RawMessage(`"k1"`), "quantity": json.RawMessage(`"3"`)},
	})

	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 5}, quantities(lines))
}

func TestDebounceCollapsesBurstIntoOnePush(t *testing.T) {
	h := newHarness("tok")
	ctx := context.Background()
	s := h.store("u1")

	s.AddLine(ctx, product("p1"), pack("k1", ""), 1, "2024-02-01", "")
	s.AddLine(ctx, product("p2"), pack("k1", ""), 1, "2024-02-01", "")
	s.SetQuantity(ctx, "p1", "k1", 4)

	require.Len(t, h.clock.active(), 1, "only one timer may be armed")
	assert.Equal(t, DefaultSyncDelay, h.clock.active()[0].delay)
	h.clock.fireAll()

	pushes := h.pusher.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 4, {"p2", "k1"}: 1}, quantities(pushes[0].lines))
}

func TestAnonymousCartNeverPushes(t *testing.T) {
	h := newHarness("tok")
	s := h.store(Anonymous)
	s.AddLine(context.Background(), product("p1"), pack("k1", ""), 1, "2024-02-01", "")

	assert.Empty(t, h.clock.active())
	h.clock.fireAll()
	assert.Empty(t, h.pusher.pushes())
}

func TestCloseCancelsPendingPush(t *testing.T) {
	h := newHarness("tok")
	s := h.store("u1")
	s.AddLine(context.Background(), product("p1"), pack("k1", ""), 1, "2024-02-01", "")

	s.Close()
	h.clock.fireAll()
	s.AddLine(context.Background(), product("p1"), pack("k1", ""), 1, "2024-02-01", "")
	h.clock.fireAll()

	assert.Empty(t, h.pusher.pushes())
}

func TestFlushPushesPendingStateImmediately(t *testing.T) {
	h := newHarness("tok")
	s := h.store("u1")
	s.AddLine(context.Background(), product("p1"), pack("k1", ""), 2, "2024-02-01", "")

	s.Flush(context.Background())
	h.clock.fireAll()

	pushes := h.pusher.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, 2, pushes[0].lines[0].Quantity)
}

func TestClearDeletesSnapshotsAndPushesEmptyCart(t *testing.T) {
	h := newHarness("tok")
	ctx := context.Background()
	h.storage.seed(Anonymous, line("p1", "k1", 1, "2024-02-01"))
	s := h.store("u1")
	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")

	assert.Empty(t, s.Clear(ctx))
	assert.False(t, h.storage.has("cart:u1"))
	assert.False(t, h.storage.has("cart:anon"))

	h.clock.fireAll()
	pushes := h.pusher.pushes()
	require.Len(t, pushes, 1)
	assert.Empty(t, pushes[0].lines)
}

func TestRoundTripThroughDurableStorage(t *testing.T) {
	h := newHarness("")
	ctx := context.Background()
	s := h.store("u1")
	s.AddLine(ctx, product("p1"), pack("k1", "12.50"), 2, "2024-02-01", "note")
	s.AddLine(ctx, product("p2"), pack("k3", ""), 1, "2024-02-02", "")
	want := s.Lines()

	reloaded := h.store("u1").Lines()

	require.Len(t, reloaded, len(want))
	for i := range want {
		assert.Equal(t, want[i].Key(), reloaded[i].Key())
		assert.Equal(t, want[i].Quantity, reloaded[i].Quantity)
		assert.Equal(t, want[i].Product, reloaded[i].Product)
		assert.Equal(t, want[i].RequestedDeliveryDate, reloaded[i].RequestedDeliveryDate)
		assert.Equal(t, want[i].SpecialInstructions, reloaded[i].SpecialInstructions)
		assert.True(t, want[i].DosePack.Price.Decimal.Equal(reloaded[i].DosePack.Price.Decimal))
	}
}

func TestRestoreIdentityResumesLastSignedInUser(t *testing.T) {
	h := newHarness("")
	ctx := context.Background()
	h.storage.seed("u1", line("p1", "k1", 2, "2024-02-01"))
	h.storage.data[IdentityKey] = "u1"

	s, err := NewStore(ctx, StoreParams{Persistence: NewPersister(h.storage, nil), RestoreIdentity: true})
	require.NoError(t, err)

	assert.Equal(t, Identity("u1"), s.Identity())
	assert.Equal(t, 2, s.TotalQuantity())
}

func TestStartupDoesNotFallBackToAnonymousSnapshot(t *testing.T) {
	h := newHarness("")
	h.storage.seed(Anonymous, line("p1", "k1", 2, "2024-02-01"))

	assert.Empty(t, h.store("u1").Lines())
}

func TestMalformedSnapshotReadsAsAbsent(t *testing.T) {
	h := newHarness("")
	h.storage.data["cart:u1"] = "{not json"

	s := h.store("u1")
	assert.Empty(t, s.Lines())
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	h := newHarness("")
	h.storage.fail = true
	ctx := context.Background()
	s := h.store(Anonymous)

	s.AddLine(ctx, product("p1"), pack("k1", ""), 2, "2024-02-01", "")
	lines := s.TransitionIdentity(ctx, "u1")
	assert.Equal(t, map[LineKey]int{{"p1", "k1"}: 2}, quantities(lines))
	assert.Empty(t, s.Clear(ctx))
}

func TestTotals(t *testing.T) {
	h := newHarness("")
	ctx := context.Background()
	s := h.store(Anonymous)
	s.AddLine(ctx, product("p1"), pack("k1", "12.50"), 2, "2024-02-01", "")
	s.AddLine(ctx, product("p2"), pack("k1", "3.10"), 3, "2024-02-01", "")
	s.AddLine(ctx, product("p3"), pack("k1", ""), 1, "2024-02-01", "")

	assert.Equal(t, 6, s.TotalQuantity())
	assert.Equal(t, "34.3", s.Subtotal().String())
}

func TestNewStoreRequiresPersister(t *testing.T) {
	_, err := NewStore(context.Background(), StoreParams{})
	assert.Error(t, err)
}
