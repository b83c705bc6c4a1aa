package main

import (
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paycore/config"
	"paycore/internal/database"
	"paycore/internal/lock"
	"paycore/internal/logger"
	"paycore/internal/repository"
	"paycore/internal/service"
	"paycore/pkg/payment"
)

func replayCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply order projections for settled intents whose projection never committed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.Must(cfg.Server.Env)
			defer log.Sync()

			db, err := database.NewDB(&cfg.Database, log)
			if err != nil {
				return err
			}
			registry := payment.DefaultRegistry(cfg.Payment.ProviderTimeout)
			settings := service.NewSettingsService(repository.NewSettingRepository(db), registry)
			var locker lock.Locker
			if cfg.Redis.Addr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer rdb.Close()
				locker = lock.NewRedisLocker(rdb, cfg.Payment.LockTTL)
			} else {
				log.Warn("no REDIS_ADDR; replay only serializes with itself")
			}
			svc := service.NewPaymentService(db, settings, locker, nil, cfg.Payment, log)

			report, err := svc.ReplayProjections(cmd.Context(), limit)
			if err != nil {
				log.Error("replay", zap.Error(err))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum intents to replay")
	return cmd
}
