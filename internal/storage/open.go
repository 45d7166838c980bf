package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	"github.com/angelmondragon/vaccine-orders/pkg/config"
	"github.com/angelmondragon/vaccine-orders/pkg/db"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/angelmondragon/vaccine-orders/pkg/migrate"
	pkgredis "github.com/angelmondragon/vaccine-orders/pkg/redis"
	"go.uber.org/multierr"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Backend is an opened durable storage together with the connections it owns.
type Backend struct {
	cart.Storage
	Driver  string
	closers []io.Closer
}

// Close releases every connection the backend opened.
func (b *Backend) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i].Close())
	}
	b.closers = nil
	return err
}

// Open builds the backend selected by cfg.Storage.Driver. SQL backends are migrated on open.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	driver := cfg.Storage.Driver
	ctx = logg.WithField(ctx, "storage_driver", driver)

	switch driver {
	case DriverMemory:
		return &Backend{Storage: NewMemory(), Driver: driver}, nil

	case DriverSQLite, DriverPostgres:
		dbCfg := cfg.DB
		if driver == DriverSQLite {
			dbCfg = config.DBConfig{DSN: cfg.Storage.SQLitePath, Driver: db.DriverSQLite}
		} else {
			dbCfg.Driver = db.DriverPostgres
		}
		client, err := db.New(ctx, dbCfg, logg)
		if err != nil {
			return nil, fmt.Errorf("opening %s storage: %w", driver, err)
		}
		if err := migrate.Apply(ctx, logg, client); err != nil {
			return nil, multierr.Append(fmt.Errorf("migrating %s storage: %w", driver, err), client.Close())
		}
		return &Backend{Storage: NewSQL(client.DB()), Driver: driver, closers: []io.Closer{client}}, nil

	case DriverRedis:
		client, err := pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, fmt.Errorf("opening redis storage: %w", err)
		}
		return &Backend{Storage: NewRedis(client), Driver: driver, closers: []io.Closer{client}}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
