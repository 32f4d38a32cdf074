package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wfunc/callout/cards"
	"github.com/wfunc/callout/config"
	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/persistence"
	"github.com/wfunc/callout/room"
	"github.com/wfunc/callout/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:           "callout",
		Short:         "Room coordinator for the callout party game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&configPath, "config", "c", ".", "directory holding config.yaml")
	fs.String("http-address", ":8080", "address to serve websocket and http on (env: CALLOUT_SERVER_HTTP_ADDRESS)")
	fs.String("rpc-address", "", "address for the stats rpc server, empty to disable (env: CALLOUT_SERVER_RPC_ADDRESS)")
	fs.String("log-level", "info", "log level (env: CALLOUT_LOG_LEVEL)")

	_ = v.BindPFlag("server.http_address", fs.Lookup("http-address"))
	_ = v.BindPFlag("server.rpc_address", fs.Lookup("rpc-address"))
	_ = v.BindPFlag("log.level", fs.Lookup("log-level"))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	catalog, err := loadCatalog(cfg.Cards)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var extras []persistence.ChallengeRecorder
	if cfg.History.RedisAddr != "" {
		queue, err := persistence.NewRedisQueue(cfg.History.RedisAddr, cfg.History.RedisDB, cfg.History.QueueName)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer queue.Close()
		extras = append(extras, queue)
		logger.Log.Infof("Publishing challenge history to redis list %s", cfg.History.QueueName)
	}

	gameServer, err := server.NewGameServer(server.Options{
		HTTPAddress: cfg.Server.HTTPAddress,
		RPCAddress:  cfg.Server.RPCAddress,
		PublicURL:   cfg.Server.PublicURL,
		Settings: room.Settings{
			HandSize:       cfg.Game.HandSize,
			MinPlayers:     cfg.Game.MinPlayers,
			ScoreAward:     cfg.Game.ScoreAward,
			ResponseWindow: cfg.Game.ResponseWindow,
			VotingWindow:   cfg.Game.VotingWindow,
		},
		Catalog:       catalog,
		Database:      db,
		Recorders:     extras,
		RoomIdleTTL:   cfg.Game.RoomIdleTTL,
		SweepInterval: cfg.Game.SweepInterval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- gameServer.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return gameServer.Shutdown(shutdownCtx)
}

func loadCatalog(defs []config.CardConfig) (*cards.Catalog, error) {
	if len(defs) == 0 {
		return cards.Default(), nil
	}
	list := make([]cards.Card, 0, len(defs))
	for _, d := range defs {
		list = append(list, cards.Card{ID: d.ID, Text: d.Text})
	}
	return cards.NewCatalog(list)
}

func openDatabase(cfg config.DatabaseConfig) (persistence.Database, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "gorm":
		db, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, err
		}
		logger.Log.Info("Database connection successful.")
		return db, nil
	case "postgres":
		db, err := persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, err
		}
		logger.Log.Info("Database connection successful.")
		return db, nil
	default:
		logger.Log.Info("Using in-memory challenge history")
		return persistence.NewMemoryStore(), nil
	}
}
