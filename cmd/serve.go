/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Rifat79/dcb-renewal-service/internal/broker"
	"github.com/Rifat79/dcb-renewal-service/internal/config"
	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/consumer"
	"github.com/Rifat79/dcb-renewal-service/internal/dispatcher"
	"github.com/Rifat79/dcb-renewal-service/internal/gateway"
	"github.com/Rifat79/dcb-renewal-service/internal/healthserver"
	"github.com/Rifat79/dcb-renewal-service/internal/ledger"
	"github.com/Rifat79/dcb-renewal-service/internal/metrics"
	"github.com/Rifat79/dcb-renewal-service/internal/queue"
	"github.com/Rifat79/dcb-renewal-service/internal/retrier"
	"github.com/Rifat79/dcb-renewal-service/internal/store"
	"github.com/Rifat79/dcb-renewal-service/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   constants.ServeSubcommand,
	Short: "Run the dispatcher, operator workers, result consumer and notification retrier",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registerer := prometheus.DefaultRegisterer
	businessMetrics := healthserver.NewBusinessMetrics(registerer)

	pool, err := store.NewPgxPool(ctx, store.PgConfig{
		URL:             cfg.Database.URL,
		ConnectionLimit: int32(cfg.Database.ConnectionLimit),
		PoolTimeout:     cfg.Database.PoolTimeout,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to establish database pool: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		_ = rdb.Close()
	}()

	amqpBroker := broker.New(cfg.Broker.URL(), slog.Default())
	if err := amqpBroker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification broker: %w", err)
	}
	defer func() {
		_ = amqpBroker.Close()
	}()

	subscriptionStore := store.NewSubscriptionStore(pool)
	billingEventStore := store.NewBillingEventStore(pool)
	resultLedger := ledger.New(rdb)

	loc, err := time.LoadLocation(constants.DispatcherTimeZoneName)
	if err != nil {
		return fmt.Errorf("failed to load dispatcher time zone: %w", err)
	}

	gpTransportWrap, err := metrics.NewTransportWrapper().
		SetSubsystem("dcb_gateway_gp").
		AddPaths("/partner/payment/v1/-/transactions/amount").
		SetRegisterer(registerer).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build GP gateway metrics transport: %w", err)
	}
	robiTransportWrap, err := metrics.NewTransportWrapper().
		SetSubsystem("dcb_gateway_robi").
		AddPaths("/api/renewSubscription").
		SetRegisterer(registerer).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build ROBI gateway metrics transport: %w", err)
	}

	gpTransport := gateway.NewMetricsTransport(gpTransportWrap, http.DefaultTransport)
	robiTransport := gateway.NewMetricsTransport(robiTransportWrap, http.DefaultTransport)

	gpClient := gateway.NewGPClient(cfg.GP.BaseURL, cfg.GP.BasicAuthUser, cfg.GP.BasicAuthPass, cfg.GP.Timeout, gpTransport, slog.Default())
	robiClient := gateway.NewRobiClient(cfg.Robi.BaseURL, cfg.Robi.Timeout, robiTransport, slog.Default())

	gpQueue := queue.New(rdb, constants.OperatorGP, slog.Default())
	robiQueue := queue.New(rdb, constants.OperatorRobi, slog.Default())
	robiMifeQueue := queue.New(rdb, constants.OperatorRobiMife, slog.Default())

	gpWorker := worker.New(constants.OperatorGP, gpClient, gpQueue, resultLedger, true, loc, businessMetrics, slog.Default())
	robiWorker := worker.New(constants.OperatorRobi, robiClient, robiQueue, resultLedger, false, loc, businessMetrics, slog.Default())
	robiMifeWorker := worker.New(constants.OperatorRobiMife, robiClient, robiMifeQueue, resultLedger, false, loc, businessMetrics, slog.Default())

	go gpQueue.RegisterWorker(ctx, constants.ConcurrencyGP, gpWorker.Handle)
	go robiQueue.RegisterWorker(ctx, constants.ConcurrencyRobi, robiWorker.Handle)
	go robiMifeQueue.RegisterWorker(ctx, constants.ConcurrencyRobi, robiMifeWorker.Handle)

	dispatcherQueues := map[string]dispatcher.Enqueuer{
		constants.OperatorGP:       gpQueue,
		constants.OperatorRobi:     robiQueue,
		constants.OperatorRobiMife: robiMifeQueue,
	}
	renewalDispatcher := dispatcher.New(subscriptionStore, dispatcherQueues, businessMetrics, slog.Default())

	cronEngine := cron.New(cron.WithLocation(loc))
	if _, err := renewalDispatcher.Schedule(cronEngine); err != nil {
		return fmt.Errorf("failed to schedule dispatcher: %w", err)
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	resultConsumer := consumer.New(resultLedger, subscriptionStore, billingEventStore, amqpBroker, businessMetrics, slog.Default())
	go resultConsumer.Run(ctx)

	notificationRetrier := retrier.New(resultLedger, amqpBroker, businessMetrics, slog.Default())
	go notificationRetrier.Run(ctx)

	healthChecks := map[string]healthserver.Checker{
		"redis_connected":  func() bool { return rdb.Ping(ctx).Err() == nil },
		"broker_connected": amqpBroker.IsConnected,
		"db_connected":     func() bool { return pool.Ping(ctx) == nil },
	}
	healthSrv, err := healthserver.New(registerer, healthChecks)
	if err != nil {
		return fmt.Errorf("failed to build health server: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("renewal service listening", "addr", addr)
	return healthserver.Serve(ctx, addr, healthSrv.Router())
}
