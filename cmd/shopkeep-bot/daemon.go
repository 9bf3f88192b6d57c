// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/shopkeep/lib/announce"
	"github.com/bureau-foundation/shopkeep/lib/authorization"
	"github.com/bureau-foundation/shopkeep/lib/catalog"
	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/config"
	"github.com/bureau-foundation/shopkeep/lib/gate"
	"github.com/bureau-foundation/shopkeep/lib/ledger"
	"github.com/bureau-foundation/shopkeep/lib/livestock"
	"github.com/bureau-foundation/shopkeep/lib/progress"
	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/lib/secret"
	"github.com/bureau-foundation/shopkeep/lib/service"
	"github.com/bureau-foundation/shopkeep/lib/settings"
	"github.com/bureau-foundation/shopkeep/lib/shopdb"
	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
	"github.com/bureau-foundation/shopkeep/lib/stockimport"
	"github.com/bureau-foundation/shopkeep/lib/version"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// daemon owns everything the bot runs: the Matrix session, the
// database, the command dispatcher, the live stock synchronizer, and
// the ops surfaces.
type daemon struct {
	config       *config.Config
	clock        clock.Clock
	logger       *slog.Logger
	session      messaging.Session
	database     *sqlitepool.Pool
	settings     *settings.Store
	bot          *Bot
	intake       *commandIntake
	synchronizer *livestock.Synchronizer
	startedAt    time.Time
	ready        atomic.Bool
}

func newDaemon(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{config: cfg, clock: clk, logger: logger, startedAt: clk.Now()}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	userID, err := ref.ParseUserID(cfg.Matrix.UserID)
	if err != nil {
		return nil, fmt.Errorf("matrix.user_id: %w", err)
	}
	token, err := cfg.ReadAccessToken()
	if err != nil {
		return nil, err
	}
	session, err := client.SessionFromToken(userID, string(token))
	secret.Zero(token)
	if err != nil {
		return nil, err
	}
	d.session = session

	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("validating access token: %w", err)
	}
	if whoami != userID {
		return nil, fmt.Errorf("access token belongs to %s, configured user is %s", whoami, userID)
	}
	logger.Info("matrix session valid", "user_id", userID.String())

	commandsRoom, err := joinRoom(ctx, session, cfg.Rooms.Commands)
	if err != nil {
		return nil, fmt.Errorf("joining commands room: %w", err)
	}
	liveRoom, err := joinRoom(ctx, session, cfg.Rooms.LiveStock)
	if err != nil {
		return nil, fmt.Errorf("joining live stock room: %w", err)
	}
	logger.Info("rooms ready",
		"commands_room", commandsRoom.String(),
		"live_stock_room", liveRoom.String(),
	)

	d.database, err = shopdb.Open(ctx, shopdb.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	catalogStore := catalog.New(d.database, clk)
	ledgerStore := ledger.New(d.database, clk)
	d.settings = settings.New(d.database, clk)

	progressConfig := progress.Config{
		Every:       cfg.Progress.Every,
		MinInterval: cfg.Progress.MinInterval.Std(),
		Clock:       clk,
	}
	commandChannel := chat.NewMatrixChannel(session, commandsRoom, logger)

	confirmations, err := gate.New(gate.Config{
		Channel:        commandChannel,
		Clock:          clk,
		DefaultTimeout: cfg.Confirmation.Timeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	importer, err := stockimport.New(stockimport.Config{
		Catalog:           catalogStore,
		MaxSize:           cfg.Import.MaxSize,
		AllowedExtensions: cfg.Import.AllowedExtensions,
		Progress:          progressConfig,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	fanout, err := announce.New(announce.Config{
		Sender:   chat.NewMatrixDirectSender(session, logger),
		Progress: progressConfig,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	d.synchronizer, err = livestock.New(livestock.Config{
		Channel:  chat.NewMatrixChannel(session, liveRoom, logger),
		Source:   catalogStore,
		Clock:    clk,
		Interval: cfg.LiveStock.Interval.Std(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	d.bot = &Bot{
		prefix:         cfg.CommandPrefix,
		roomID:         commandsRoom,
		guard:          authorization.NewGuard(cfg.AdminID, logger),
		replies:        commandChannel,
		gate:           confirmations,
		confirmTimeout: cfg.Confirmation.Timeout.Std(),
		importer:       importer,
		maxUpload:      cfg.Import.MaxSize,
		fanout:         fanout,
		catalog:        catalogStore,
		ledger:         ledgerStore,
		settings:       d.settings,
		database:       d.database,
		media:          session,
		display:        d.synchronizer,
		clock:          clk,
		startedAt:      d.startedAt,
		logger:         logger,
	}
	d.bot.registerCommands()
	d.intake = &commandIntake{roomID: commandsRoom, self: userID, bot: d.bot, logger: logger}
	return d, nil
}

// joinRoom resolves a room ID or alias and joins it.
func joinRoom(ctx context.Context, session messaging.Session, raw string) (ref.RoomID, error) {
	var roomID ref.RoomID
	if strings.HasPrefix(raw, "#") {
		alias, err := ref.ParseRoomAlias(raw)
		if err != nil {
			return ref.RoomID{}, err
		}
		roomID, err = session.ResolveAlias(ctx, alias)
		if err != nil {
			return ref.RoomID{}, fmt.Errorf("resolving %s: %w", alias, err)
		}
	} else {
		var err error
		roomID, err = ref.ParseRoomID(raw)
		if err != nil {
			return ref.RoomID{}, err
		}
	}
	return session.JoinRoom(ctx, roomID)
}

// Run serves until ctx is cancelled. Commands sent while the bot was
// down are skipped: the first sync only establishes the position.
func (d *daemon) Run(ctx context.Context) error {
	filter := commandFilter(d.intake.roomID)
	since, err := service.InitialSync(ctx, d.session, filter)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.synchronizer.Run(ctx)
	})
	group.Go(func() error {
		service.RunSyncLoop(ctx, d.session, service.SyncConfig{Filter: filter}, since, d.intake.handleSync, d.clock, d.logger)
		d.bot.Wait()
		return nil
	})

	ops := d.ops()
	if path := d.config.Ops.Socket; path != "" {
		socket := service.NewSocketServer(path, d.logger)
		service.RegisterOps(socket, ops)
		group.Go(func() error { return socket.Serve(ctx) })
	}
	if address := d.config.Ops.HTTPAddress; address != "" {
		server := service.NewHTTPServer(service.HTTPServerConfig{
			Address: address,
			Handler: service.NewOpsRouter(ops, d.logger),
			Logger:  d.logger,
		})
		group.Go(func() error { return server.Serve(ctx) })
	}

	d.ready.Store(true)
	d.logger.Info("shopkeep running",
		"version", version.Info(),
		"admin", d.config.AdminID,
		"socket", d.config.Ops.Socket,
		"http", d.config.Ops.HTTPAddress,
	)

	err = group.Wait()
	d.logger.Info("shutting down")
	return err
}

func (d *daemon) ops() service.Ops {
	return service.Ops{
		Status: func(ctx context.Context) (service.StatusReply, error) {
			maintenance, err := d.settings.Maintenance(ctx)
			if err != nil {
				return service.StatusReply{}, err
			}
			return service.StatusReply{
				Build:       version.Current(),
				StartedAt:   d.startedAt,
				Maintenance: maintenance,
				LiveStock:   d.synchronizer.Status(),
			}, nil
		},
		Reconcile: func(ctx context.Context) (service.ReconcileReply, error) {
			result := d.synchronizer.Tick(ctx)
			return service.ReconcileReply{Result: result, LiveStock: d.synchronizer.Status()}, nil
		},
		Ready: d.ready.Load,
	}
}

// Close releases the database and the session.
func (d *daemon) Close() {
	if d.database != nil {
		if err := d.database.Close(); err != nil {
			d.logger.Error("closing database", "error", err)
		}
	}
	if d.session != nil {
		d.session.Close()
	}
}
