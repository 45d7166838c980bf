package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	"github.com/angelmondragon/vaccine-orders/internal/remote"
	"github.com/angelmondragon/vaccine-orders/internal/storage"
	"github.com/angelmondragon/vaccine-orders/pkg/config"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/angelmondragon/vaccine-orders/pkg/metrics"
)

const usage = `usage: cartctl <command> [args]

commands:
  list
  add [-name N] [-doses D] [-price P] <product> <pack> <qty> [date] [note]
  remove <product> <pack>
  qty <product> <pack> <qty>
  date <product> <pack> <YYYY-MM-DD>
  note <product> <pack> <text>
  clear
  login <user> <token>
  logout
  pull
`

var errUsage = errors.New("invalid usage")

func main() {
	logg := logger.New(logger.Options{ServiceName: "cartctl", Output: os.Stderr})

	_ = godotenv.Load()

	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cartctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logg, os.Stdout, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
			os.Exit(2)
		}
		logg.Error(ctx, "cartctl failed", err)
		os.Exit(1)
	}
}

// session is everything one invocation needs: the store plus the collaborators
// the login/logout/pull commands touch directly.
type session struct {
	store  *cart.Store
	tokens *storage.TokenSource
	remote *remote.Client
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, out io.Writer, args []string) (err error) {
	backend, err := storage.Open(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, backend.Close())
	}()

	sess, err := openSession(ctx, cfg, logg, backend)
	if err != nil {
		return err
	}
	defer sess.store.Close()

	if err := dispatch(ctx, sess, args); err != nil {
		return err
	}

	sess.store.Flush(ctx)
	printCart(out, sess.store)
	return nil
}

func openSession(ctx context.Context, cfg *config.Config, logg *logger.Logger, backend cart.Storage) (*session, error) {
	tokens := storage.NewTokenSource(backend, logg)

	client, err := remote.NewClient(cfg.Remote.BaseURL,
		remote.WithAuthScheme(cfg.Remote.AuthScheme),
		remote.WithLogger(logg),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
	)
	if err != nil {
		return nil, err
	}

	var scheduler cart.Scheduler
	if cfg.Sync.Enabled {
		scheduler, err = cart.NewSyncer(cart.SyncerParams{
			Pusher:  client,
			Tokens:  tokens,
			Delay:   cfg.Sync.Debounce,
			Timeout: cfg.Sync.PushTimeout,
			Logger:  logg,
			Metrics: metrics.NewSyncMetrics(nil),
		})
		if err != nil {
			return nil, err
		}
	}

	store, err := cart.NewStore(ctx, cart.StoreParams{
		Persistence:     cart.NewPersister(backend, logg),
		Sync:            scheduler,
		Logger:          logg,
		RestoreIdentity: true,
	})
	if err != nil {
		return nil, err
	}
	return &session{store: store, tokens: tokens, remote: client}, nil
}
