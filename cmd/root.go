package cmd

import (
	"context"
	"time"

	coreconfig "github.com/Zer0phucks/devconsul/core/config"
	coreDB "github.com/Zer0phucks/devconsul/core/database"
	"github.com/Zer0phucks/devconsul/infrastructure/valkey"
	"github.com/Zer0phucks/devconsul/pkg/pubworker"
	"github.com/Zer0phucks/devconsul/pkg/utils"
	pubApp "github.com/Zer0phucks/devconsul/publishing/application"
	pubDomain "github.com/Zer0phucks/devconsul/publishing/domain"
	pubInfra "github.com/Zer0phucks/devconsul/publishing/infrastructure"
	schedApp "github.com/Zer0phucks/devconsul/scheduling/application"
	schedDomain "github.com/Zer0phucks/devconsul/scheduling/domain"
	schedRepo "github.com/Zer0phucks/devconsul/scheduling/repository"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	db       *gorm.DB
	vkClient *valkey.Client
	serverID string

	scheduleRepo   schedDomain.IScheduleRepository
	metricsRepo    schedDomain.IMetricsRepository
	queueService   *schedApp.QueueService
	metricsService *schedApp.MetricsService
	registry       *pubDomain.Registry
	dispatcher     *pubApp.Dispatcher
)

var rootCmd = &cobra.Command{
	Use:   "devconsul",
	Short: "Scheduled content publishing queue",
	Long: `Queue-backed scheduled publishing: content is enqueued with a due time,
claimed atomically by background dispatchers and delivered to the configured
platform sinks, with retries and per-project metrics.`,
}

var (
	flagPort  string
	flagDebug bool
)

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&flagPort,
		"port", "p",
		"",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagDebug,
		"debug", "d",
		false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
}

// initEnvConfig loads configuration from environment variables
func initEnvConfig() {
	viper.AutomaticEnv()

	if _, err := coreconfig.LoadConfig(); err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	// Flags win over environment
	if flagPort != "" {
		coreconfig.Global.App.Port = flagPort
	}
	if flagDebug {
		coreconfig.Global.App.Debug = true
	}
}

func initApp() {
	if coreconfig.Global.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx := context.Background()

	var err error
	db, err = coreDB.NewDatabase(coreconfig.Global)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}

	scheduleRepo = schedRepo.NewScheduleGormRepository(db)
	if err := scheduleRepo.Init(ctx); err != nil {
		logrus.Fatalf("failed to init schedule repo: %v", err)
	}
	metricsRepo = schedRepo.NewMetricsGormRepository(db)
	if err := metricsRepo.Init(ctx); err != nil {
		logrus.Fatalf("failed to init metrics repo: %v", err)
	}

	serverID = utils.GetPersistentServerID(coreconfig.Global.App.ServerID, coreconfig.Global.Paths.Storages)

	if coreconfig.Global.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   coreconfig.Global.Database.ValkeyAddress,
			Password:  coreconfig.Global.Database.ValkeyPassword,
			DB:        coreconfig.Global.Database.ValkeyDB,
			KeyPrefix: coreconfig.Global.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Warnf("Valkey unavailable, continuing without it: %v", err)
			vkClient = nil
		}
	}

	clock := schedDomain.SystemClock()
	metricsService = schedApp.NewMetricsService(scheduleRepo, metricsRepo, clock)
	queueService = schedApp.NewQueueService(scheduleRepo, metricsService, clock, vkClient, schedApp.QueueDefaults{
		Priority:          coreconfig.Global.Queue.DefaultPriority,
		MaxRetries:        coreconfig.Global.Queue.DefaultMaxRetries,
		RetryDelaySeconds: int(coreconfig.Global.Queue.DefaultRetryDelay.Seconds()),
	}, serverID)

	registry = pubDomain.NewRegistry()
	registry.Register(pubInfra.NewLogPublisher())
	registry.SetFallback(pubInfra.NewLogPublisher())
	if url := coreconfig.Global.Publisher.WebhookURL; url != "" {
		webhook := pubInfra.NewWebhookPublisher(pubInfra.WebhookConfig{
			URL:                url,
			Secret:             coreconfig.Global.Publisher.WebhookSecret,
			InsecureSkipVerify: coreconfig.Global.Publisher.WebhookInsecureTLS,
		})
		registry.Register(webhook)
		registry.SetFallback(webhook)
	}

	dispatcher = pubApp.NewDispatcher(queueService, scheduleRepo, registry, pubworker.GetGlobalPool(), vkClient, clock, pubApp.DispatcherConfig{
		BatchSize:         coreconfig.Global.Queue.DequeueBatchSize,
		PollInterval:      coreconfig.Global.Queue.PollInterval,
		MaxSleep:          coreconfig.Global.Queue.MaxSleep,
		StuckSweepEnabled: coreconfig.Global.Queue.StuckSweepEnabled,
		ProcessingTimeout: coreconfig.Global.Queue.ProcessingTimeout,
	})

	logrus.Infof("[APP] Initialized (server_id=%s, driver=%s)", serverID, coreconfig.Global.Database.Driver)
}

// StopApp releases shared resources on shutdown.
func StopApp() {
	pubworker.StopGlobalPool()
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
