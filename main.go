package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/foosref/broadcast"
	"github.com/wfunc/foosref/config"
	"github.com/wfunc/foosref/giphy"
	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/monitor"
	"github.com/wfunc/foosref/persistence"
	"github.com/wfunc/foosref/referee"
	"github.com/wfunc/foosref/room"
	"github.com/wfunc/foosref/rpc"
	"github.com/wfunc/foosref/server"
	"github.com/wfunc/foosref/services"
	"github.com/wfunc/foosref/session"
	"github.com/wfunc/foosref/state"
	"github.com/wfunc/foosref/timer"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "foosref",
		Short:        "Foosball referee chat bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", ".", "config file or directory holding config.yaml")
	flags.String("http", "", "websocket chat listen address")
	flags.String("rpc", "", "admin RPC listen address")
	flags.String("metrics", "", "metrics listen address")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("development", false, "human readable development logging")
	flags.String("storage", "", "state storage driver (memory, gorm, postgres)")
	flags.String("giphy-key", "", "giphy API key, empty disables images")
	flags.String("nag-scope", "", "nag timer scope (channel, global)")
	flags.Duration("nag-delay", 0, "minimum idle time before a nag")

	cmd.AddCommand(newAdminCommand())
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := services.NewUserDirectory()
	users.Register(services.User{ID: cfg.Server.BotID, Name: cfg.Server.BotName, IsBot: true})
	for _, u := range cfg.Users {
		users.Register(services.User{ID: u.ID, Name: u.Name, RealName: u.RealName, IsBot: u.IsBot})
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	templates, err := referee.LoadTemplates(cfg.Nag.MessagesFile)
	if err != nil {
		return err
	}

	var images referee.ImageSearcher
	if cfg.Giphy.APIKey != "" {
		client := giphy.NewClient(cfg.Giphy.APIKey, cfg.Giphy.Timeout)
		client.Endpoint = cfg.Giphy.Endpoint
		client.Limit = cfg.Giphy.Limit
		client.MaxSizeBytes = cfg.Giphy.MaxSizeBytes
		images = client
	} else {
		logger.Log.Info("giphy.api_key not set, images disabled")
	}

	mon := monitor.NewMonitor("foosref", nil)
	mon.StartServer(cfg.Server.MetricsAddress)
	defer mon.Close()

	timers := timer.NewTimerManager()
	defer timers.Stop()

	rooms := room.NewRoomManager()
	bc := broadcast.NewRoomBroadcaster(rooms, cfg.Server.BotID, cfg.Server.BotName)

	ref := referee.New(store, bc, users, referee.Options{
		Images:       images,
		ImageTimeout: cfg.Giphy.Timeout,
		Templates:    templates,
		NagMinDelay:  cfg.Nag.MinDelay,
		NagScope:     referee.NagScope(cfg.Nag.Scope),
		Timers:       timers,
		Metrics:      mon,
	})
	defer ref.Close()

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	if err := rpcServer.Register("Admin", rpc.NewAdminService(ref)); err != nil {
		return fmt.Errorf("rpc register: %w", err)
	}
	go rpcServer.Start()
	defer rpcServer.Stop()

	chat := server.NewChatServer(cfg.Server.HTTPAddress, cfg.Server.Heartbeat, server.Deps{
		Referee:     ref,
		Rooms:       rooms,
		Sessions:    session.NewManager(),
		Users:       users,
		Broadcaster: bc,
		Monitor:     mon,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- chat.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return chat.Shutdown(shutdownCtx)
}

// openStore picks the state backend named by storage.driver.
func openStore(cfg *config.Config) (state.Store, func(), error) {
	pg := cfg.Database.Postgres

	var (
		db  persistence.Database
		err error
	)
	switch cfg.Storage.Driver {
	case "gorm":
		db, err = persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "postgres":
		db, err = persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return state.NewMemoryStore(), func() {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Log.Infof("Database connection successful (%s).", cfg.Storage.Driver)

	return state.NewPersistentStore(db), func() { db.Close() }, nil
}
