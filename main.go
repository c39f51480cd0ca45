// Readersync keeps a local mirror of a livedoor Reader account.
//
// It pulls subscriptions and their items into a SQLite file and queues pin
// changes made while offline until the reader can be reached again.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/run"
	"github.com/sethvargo/go-retry"

	"github.com/jdholdren/readersync/internal/config"
	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/ldr"
	"github.com/jdholdren/readersync/internal/server"
	"github.com/jdholdren/readersync/internal/sqlite"
	rsync "github.com/jdholdren/readersync/internal/sync"
	"github.com/jdholdren/readersync/logger"
)

const usage = `usage: readersync <command> [args]

commands:
  serve                 sync on an interval and serve the control api
  sync                  run one full sync
  subs                  list stored subscriptions
  items <id>            sync the items of one subscription
  pins                  list stored pins
  pin <uri> <title>     pin a page
  unpin <uri>           unpin a page
  clear-pins            clear every pin
  unread                count unread items`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Parse the config
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stderr, cfg.LoggerFormat, cfg.LogLevel))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// Start the application
	if err := runCommand(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("error running", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

type app struct {
	dbx    *sqlx.DB
	repo   sqlite.Repo
	conn   ldr.Reachability
	syncer *rsync.Syncer
}

func newApp(cfg config.Config) (*app, error) {
	dbx, err := sqlite.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	var (
		repo   = sqlite.New(dbx)
		client = ldr.New(ldr.Config{
			ReaderURL: cfg.ReaderURL,
			LoginURL:  cfg.LoginURL,
			Timeout:   cfg.HTTPTimeout,
			Retries:   cfg.HTTPRetries,
		}, nil)
		conn = ldr.NewReachability(cfg.ReaderURL, cfg.HTTPTimeout)
	)

	return &app{
		dbx:  dbx,
		repo: repo,
		conn: conn,
		syncer: rsync.NewSyncer(
			repo,
			client,
			conn,
			rsync.NewLimiterPacer(cfg.SubscriptionsPause, cfg.ItemsPause),
			rsync.NewIcons(client),
			rsync.Config{
				UnreadOnly:      cfg.UnreadOnlySync,
				AutoMarkAllRead: cfg.AutoMarkAllRead,
				StrictPinFlush:  cfg.StrictPinFlush,
				LoginID:         cfg.LoginID,
				Password:        cfg.Password,
			},
		),
	}, nil
}

func runCommand(ctx context.Context, cfg config.Config, cmd string, args []string) error {
	slog.Debug("running", "command", cmd, "config", cfg)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.dbx.Close()

	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer out.Flush()

	switch cmd {
	case "serve":
		return serve(ctx, cfg, a)

	case "sync":
		n, err := a.syncer.Sync(ctx)
		fmt.Fprintf(out, "inserted\t%d\n", n)
		return err

	case "subs":
		subs, err := a.repo.Subscriptions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "ID\tUNREAD\tSTALE\tFOLDER\tTITLE")
		for _, s := range subs {
			fmt.Fprintf(out, "%d\t%d\t%t\t%s\t%s\n", s.ID, s.UnreadCount, s.Stale(), s.Folder, s.Title)
		}
		return nil

	case "items":
		if len(args) != 1 {
			return errors.New("usage: readersync items <subscription id>")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("error parsing subscription id: %w", err)
		}
		n, err := a.syncer.SyncItemsByID(ctx, id, cfg.UnreadOnlySync)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "inserted\t%d\n", n)
		return nil

	case "pins":
		pins, err := a.repo.Pins(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "STATE\tCREATED\tURI\tTITLE")
		for _, p := range pins {
			state := "pinned"
			if p.Queued() {
				state = "queued " + p.Action.String()
			}
			created := time.Unix(p.CreatedTime, 0).Format(time.DateTime)
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", state, created, p.URI, p.Title)
		}
		return nil

	case "pin":
		if len(args) != 2 {
			return errors.New("usage: readersync pin <uri> <title>")
		}
		ok, err := a.syncer.Pin(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "success\t%t\n", ok)
		return nil

	case "unpin":
		if len(args) != 1 {
			return errors.New("usage: readersync unpin <uri>")
		}
		ok, err := a.syncer.Unpin(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "success\t%t\n", ok)
		return nil

	case "clear-pins":
		ok, err := a.syncer.PinClear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "success\t%t\n", ok)
		return nil

	case "unread":
		n, err := a.syncer.CountUnread(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "unread\t%d\n", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func serve(ctx context.Context, cfg config.Config, a *app) error {
	if cfg.LoginID == "" {
		return errors.New("LDR_LOGIN_ID is required to serve")
	}

	var (
		g   run.Group
		srv = server.New(cfg.Port, a.syncer, a.repo)
	)

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		slog.Info("serving control api", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}
		return nil
	}, func(error) {
		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}
	})

	loopCtx, stop := context.WithCancel(ctx)
	g.Add(func() error {
		return syncLoop(loopCtx, cfg, a)
	}, func(error) {
		stop()
	})

	err := g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		slog.Info("shutting down", "reason", err)
		return nil
	}

	return err
}

// syncLoop logs in, then flushes pins and runs a full sync every interval.
func syncLoop(ctx context.Context, cfg config.Config, a *app) error {
	// Retry until the reader lets us in
	if err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
		ok, err := a.syncer.Login(ctx, cfg.LoginID, cfg.Password)
		if err != nil {
			if rserrs.Is(err, rserrs.KindTransport) {
				slog.Warn("reader unreachable, retrying login", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		if !ok {
			return rserrs.E(rserrs.KindAuthRequired, "login refused")
		}
		return nil
	}); err != nil {
		return fmt.Errorf("error logging in: %w", err)
	}

	t := time.NewTicker(cfg.SyncInterval)
	defer t.Stop()
	for {
		syncOnce(ctx, a)

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func syncOnce(ctx context.Context, a *app) {
	if !a.conn.Connected(ctx) {
		slog.Info("offline, skipping sync")
		return
	}

	pins, err := a.syncer.SyncPins(ctx)
	if err != nil {
		slog.Warn("error syncing pins", "error", err)
	}

	n, err := a.syncer.Sync(ctx)
	switch {
	case errors.Is(err, rsync.ErrSyncInProgress):
		slog.Info("sync already running, skipping")
	case errors.Is(err, rsync.ErrBatchIncomplete):
		slog.Warn("sync incomplete", "inserted", n, "error", err)
	case err != nil:
		slog.Error("error syncing", "error", err)
	default:
		slog.Info("synced", "inserted", n, "pins", pins)
	}
}
