package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	"github.com/angelmondragon/vaccine-orders/pkg/config"
	"github.com/angelmondragon/vaccine-orders/pkg/db"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/angelmondragon/vaccine-orders/pkg/migrate"
	pkgredis "github.com/angelmondragon/vaccine-orders/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// exerciseStorage checks the cart.Storage contract shared by every backend.
func exerciseStorage(t *testing.T, s cart.Storage) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "cart:anon")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "cart:anon", `[{"a":1}]`))
	require.NoError(t, s.Set(ctx, "cart:anon", `[]`))
	v, found, err := s.Get(ctx, "cart:anon")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, v)

	require.NoError(t, s.Delete(ctx, "cart:anon"))
	require.NoError(t, s.Delete(ctx, "cart:anon"), "deleting a missing key is not an error")
	_, found, err = s.Get(ctx, "cart:anon")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemory())
}

func TestMemoryFailureInjection(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")
	m.FailWith(boom)

	assert.ErrorIs(t, m.Set(context.Background(), "k", "v"), boom)
	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)

	m.FailWith(nil)
	require.NoError(t, m.Set(context.Background(), "k", "v"))
	assert.Equal(t, 1, m.Len())
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrate.Apply(context.Background(), nil, db.NewFromConn(conn, db.DriverSQLite)))
	return conn
}

func TestSQLStorage(t *testing.T) {
	exerciseStorage(t, NewSQL(newSQLiteDB(t)))
}

func TestSQLStorageUpsertRefreshesTimestamp(t *testing.T) {
	conn := newSQLiteDB(t)
	s := NewSQL(conn)
	first := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	require.NoError(t, s.Set(context.Background(), "userId", "u1"))

	s.now = func() time.Time { return first.Add(time.Hour) }
	require.NoError(t, s.Set(context.Background(), "userId", "u2"))

	var count int64
	require.NoError(t, conn.Table("kv_entries").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	v, _, err := s.Get(context.Background(), "userId")
	require.NoError(t, err)
	assert.Equal(t, "u2", v)
}

type fakeRedis struct {
	data map[string]string
	err  error
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.data[key] = value.(string)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	if f.err != nil {
		return f.err
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) KVKey(key string) string { return "vop:kv:" + key }

func TestRedisStorage(t *testing.T) {
	client := &fakeRedis{data: map[string]string{}}
	exerciseStorage(t, NewRedis(client))

	require.NoError(t, NewRedis(client).Set(context.Background(), "userId", "u1"))
	assert.Equal(t, "u1", client.data["vop:kv:userId"])
}

func TestRedisStoragePropagatesErrors(t *testing.T) {
	client := &fakeRedis{data: map[string]string{}, err: errors.New("conn reset")}
	_, found, err := NewRedis(client).Get(context.Background(), "userId")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tokens := NewTokenSource(m, nil)

	assert.Equal(t, "", tokens.Token(ctx))

	require.NoError(t, tokens.Store(ctx, " abc123 "))
	assert.Equal(t, "abc123", tokens.Token(ctx))

	require.NoError(t, tokens.Store(ctx, ""))
	assert.Equal(t, "", tokens.Token(ctx))

	m.FailWith(errors.New("locked"))
	assert.Equal(t, "", tokens.Token(ctx))
}

func TestOpenMemoryAndUnknownDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: DriverMemory}}
	backend, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	exerciseStorage(t, backend)
	require.NoError(t, backend.Close())

	cfg.Storage.Driver = "etcd"
	_, err = Open(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestOpenSQLiteFile(t *testing.T) {
	path := t.TempDir() + "/cart.db"
	cfg := &config.Config{Storage: config.StorageConfig{Driver: DriverSQLite, SQLitePath: path}}

	backend, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, backend.Set(context.Background(), "cart:anon", "[]"))
	require.NoError(t, backend.Close())

	reopened, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	v, found, err := reopened.Get(context.Background(), "cart:anon")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", v)
}

func TestStoreOverSQLStorageRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewSQL(newSQLiteDB(t))
	persister := cart.NewPersister(s, nil)

	store, err := cart.NewStore(ctx, cart.StoreParams{Persistence: persister, Identity: "u1"})
	require.NoError(t, err)
	store.AddLine(ctx, cart.Product{ID: "p1"}, cart.DosePack{ID: "k1"}, 2, "2024-02-01", "")

	reloaded, err := cart.NewStore(ctx, cart.StoreParams{Persistence: persister, Identity: "u1"})
	require.NoError(t, err)
	assert.Equal(t, store.Lines(), reloaded.Lines())
}
