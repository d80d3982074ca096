package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/senyabanana/bounty-service/internal/db"
	"github.com/senyabanana/bounty-service/internal/escrow"
	"github.com/senyabanana/bounty-service/internal/identity"
	"github.com/senyabanana/bounty-service/internal/metrics"
	"github.com/senyabanana/bounty-service/internal/notify"
	"github.com/senyabanana/bounty-service/internal/repository"
	"github.com/senyabanana/bounty-service/internal/router/config"
	"github.com/senyabanana/bounty-service/internal/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// app - собранные зависимости процесса.
type app struct {
	facade *services.Facade
	close  func()
}

func buildApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*app, error) {
	dbPool, err := db.InitDb(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	closers := []func(){dbPool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	gateway, err := escrow.Dial(ctx, cfg.EscrowRPCURL, escrow.Config{
		ContractAddress: cfg.EscrowContractAddress,
		PrivateKeyHex:   cfg.EscrowPrivateKey,
		ChainID:         cfg.EscrowChainID,
		Decimals:        cfg.EscrowTokenDecimals,
		ConfirmTimeout:  cfg.EscrowConfirmTimeout,
		PollInterval:    cfg.EscrowPollInterval,
	}, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("error initializing escrow client: %w", err)
	}
	logger.WithField("sender", gateway.Sender()).Info("escrow client ready")

	var (
		sink      notify.Sink = notify.LogSink{Logger: logger}
		directory identity.Directory
	)
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, notifications go to the log")
		} else {
			sink = notify.NewRedisSink(client, cfg.NotifyChannel)
			directory = identity.NewRedisDirectory(client, cfg.IdentityHashKey)
		}
	}
	names := identity.NewCache(directory, cfg.IdentityCacheSize, cfg.IdentityCacheTTL)

	facade := services.NewFacade(services.Deps{
		Bounties:   repository.NewPostgresBountyRepository(dbPool),
		Bids:       repository.NewPostgresBidRepository(dbPool),
		Milestones: repository.NewPostgresMilestoneRepository(dbPool),
		Journal:    repository.NewPostgresAppliedTxRepository(dbPool),
		Gateway:    gateway,
		Notifier:   notify.NewEmitter(sink, names, logger),
		Logger:     logger,
		Metrics:    metrics.Default(),
		PlaceBid:   cfg.EscrowPlaceBid,
	})
	return &app{facade: facade, close: closeAll}, nil
}
