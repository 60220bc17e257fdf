package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	signals "github.com/trustmesh/go-signals"
	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/common/api"
	"github.com/trustmesh/go-signals/common/aws/config"
	"github.com/trustmesh/go-signals/common/aws/ddb"
	"github.com/trustmesh/go-signals/common/aws/queue"
	"github.com/trustmesh/go-signals/common/db"
	"github.com/trustmesh/go-signals/common/kv"
	"github.com/trustmesh/go-signals/common/loggers"
	"github.com/trustmesh/go-signals/common/metrics"
	"github.com/trustmesh/go-signals/common/mirror"
	"github.com/trustmesh/go-signals/common/notifs"
	"github.com/trustmesh/go-signals/common/redis"
	"github.com/trustmesh/go-signals/models"
	"github.com/trustmesh/go-signals/services"
)

type args struct {
	EnvFile string `arg:"--env-file" help:"dotenv file to load before reading the environment"`
	Once    bool   `arg:"--once" help:"poll every source once and exit"`
	Listen  string `arg:"--listen,env:API_LISTEN_ADDR" help:"debug API listen address, empty to disable"`
}

func main() {
	var cliArgs args
	cliArgs.Listen = common.DefaultApiListenAddr
	arg.MustParse(&cliArgs)

	if len(cliArgs.EnvFile) > 0 {
		if err := godotenv.Load(cliArgs.EnvFile); err != nil {
			log.Fatalf("Error loading %s: %v", cliArgs.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	logger := loggers.NewLogger()
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricService, err := metrics.NewOtelMetricService(ctx, logger)
	if err != nil {
		logger.Fatalf("failed to create metric service: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), models.DefaultHttpWaitTime)
		defer shutdownCancel()
		metricService.Shutdown(shutdownCtx)
	}()

	notifier, err := notifs.NewDiscordHandler(logger)
	if err != nil {
		logger.Fatalf("failed to create discord handler: %v", err)
	}

	kvStore, closeKv, err := newKvStore(ctx, logger)
	if err != nil {
		logger.Fatalf("failed to create %s kv store: %v", envOr(signals.Env_KvBackend, signals.KvBackend_Memory), err)
	}
	defer closeKv()

	mirrorClient, err := mirror.NewClient(mirror.Opts{
		BaseUrl:       envOr(signals.Env_MirrorRest, common.DefaultMirrorRest),
		PageSize:      envInt(signals.Env_BackfillPageSize, models.DefaultPageSize),
		RateLimit:     envInt(signals.Env_MirrorRateLimit, models.DefaultMirrorRateLimit),
		MaxQueueDepth: models.DefaultMirrorQueueDepth,
	}, logger, metricService)
	if err != nil {
		logger.Fatalf("failed to create mirror client: %v", err)
	}

	// Flow:
	// ====
	// 1. Source poller:
	//	- Fetch messages after each source's watermark from the mirror
	//	- Route recognition messages through the decoder/cache, everything else through the normalizer
	//	- Insert into the signal store, then advance the watermark
	// 2. State folder:
	//	- Derive contacts and trust views from the store on demand
	// 3. Event fan-out (optional):
	//	- Forward every stored event to SQS

	store := services.NewSignalStore(logger)
	cache := services.NewRecognitionCache(logger, metricService)
	cache.SetMaxPendingInstances(envInt(signals.Env_MaxPendingInstances, models.DefaultMaxPendingInstances))
	recognitions := services.NewRecognitionStore(kvStore)
	if err = recognitions.Restore(ctx, cache); err != nil {
		logger.Fatalf("failed to restore recognitions: %v", err)
	}
	cursors := services.NewCursorStore(kvStore, logger)
	sources := configuredSources(logger)
	recognitionTopic := os.Getenv(signals.Env_TopicRecognition)
	ingestion := services.NewIngestionService(services.NewNormalizer(logger), store, cache, recognitions, recognitionTopic, logger, metricService)
	folder := services.NewStateFolder(store, services.DefaultFoldTtl)
	defer folder.Close()

	pollInterval := models.DefaultTick
	if configured, err := time.ParseDuration(os.Getenv(signals.Env_PollInterval)); err == nil && configured > 0 {
		pollInterval = configured
	}
	poller := services.NewSourcePoller(
		sources, mirrorClient, cursors, ingestion, cache, store, recognitions, notifier, logger, metricService, pollInterval,
	)

	if err = metricService.Gauge(ctx, models.MetricName_RecognitionPending, cache.PendingMonitor()); err != nil {
		logger.Fatalf("failed to register pending gauge: %v", err)
	}

	if queueEnabled, _ := strconv.ParseBool(os.Getenv(signals.Env_SignalQueueEnabled)); queueEnabled {
		fanout, err := newEventFanout(ctx, logger, metricService)
		if err != nil {
			logger.Fatalf("failed to create event fan-out: %v", err)
		}
		fanout.Start(ctx, store)
		defer fanout.Stop()
	}

	if cliArgs.Once {
		if err = poller.PollAll(ctx); err != nil {
			logger.Fatalf("poll failed: %v", err)
		}
		logger.Infof("ingest: %+v", store.Summary())
		return
	}

	wg := sync.WaitGroup{}
	if len(cliArgs.Listen) > 0 {
		server := api.NewServer(api.Services{
			Ingestion:    ingestion,
			Poller:       poller,
			Cursors:      cursors,
			Store:        store,
			Recognitions: cache,
			Folder:       folder,
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(ctx, cliArgs.Listen); err != nil {
				logger.Errorf("api: server stopped: %v", err)
				cancel()
			}
		}()
	}

	// Start polling last, once everything that consumes the store is ready
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	wg.Wait()
}

func newKvStore(ctx context.Context, logger models.Logger) (models.KeyValueRepository, func(), error) {
	noop := func() {}
	switch backend := envOr(signals.Env_KvBackend, signals.KvBackend_Memory); backend {
	case signals.KvBackend_Memory:
		logger.Infof("kv: using in-memory store, cursors will not survive a restart")
		return kv.NewMemoryStore(), noop, nil
	case signals.KvBackend_Redis:
		client, err := redis.NewClient(ctx, os.Getenv(signals.Env_RedisUrl))
		if err != nil {
			return nil, noop, err
		}
		return redis.NewKvStore(client, common.ServiceName), func() { client.Close() }, nil
	case signals.KvBackend_Postgres:
		connUrl := os.Getenv(signals.Env_DatabaseUrl)
		if len(connUrl) == 0 {
			connUrl = db.KvDbOpts{
				Host:     os.Getenv("PG_HOST"),
				Port:     os.Getenv("PG_PORT"),
				User:     os.Getenv("PG_USER"),
				Password: os.Getenv("PG_PASSWORD"),
				Name:     os.Getenv("PG_DB"),
			}.ConnUrl()
		}
		kvDb, err := db.NewKvDb(ctx, connUrl)
		if err != nil {
			return nil, noop, err
		}
		return kvDb, kvDb.Close, nil
	case signals.KvBackend_DynamoDb:
		awsCfg, err := config.AwsConfig(ctx, logger)
		if err != nil {
			return nil, noop, err
		}
		kvDb, err := ddb.NewKvDb(ctx, logger, dynamodb.NewFromConfig(awsCfg))
		if err != nil {
			return nil, noop, err
		}
		return kvDb, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown kv backend %q", backend)
	}
}

func newEventFanout(ctx context.Context, logger models.Logger, metricService models.MetricService) (*services.EventFanout, error) {
	awsCfg, err := config.AwsConfig(ctx, logger)
	if err != nil {
		return nil, err
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	_, dlqArn, _, err := queue.CreateQueue(ctx, sqsClient, queue.Opts{QueueType: queue.Type_DLQ})
	if err != nil {
		return nil, err
	}
	publisher, err := queue.NewPublisher(ctx, sqsClient, queue.Opts{
		QueueType:   queue.Type_Signal,
		RedriveOpts: &queue.RedriveOpts{DlqArn: dlqArn, MaxReceiveCount: queue.DefaultMaxReceiveCount},
	})
	if err != nil {
		return nil, err
	}
	if err = metricService.Gauge(ctx, models.MetricName_SignalQueueDepth, queue.NewMonitor(publisher.GetUrl(), sqsClient)); err != nil {
		return nil, err
	}
	return services.NewEventFanout(publisher, logger, metricService, models.DefaultFanoutBuffer), nil
}

func configuredSources(logger models.Logger) []models.Source {
	sources := make([]models.Source, 0)
	for _, source := range []struct{ name, env string }{
		{"contacts", signals.Env_TopicContacts},
		{"trust", signals.Env_TopicTrust},
		{"profile", signals.Env_TopicProfile},
		{"signal", signals.Env_TopicSignal},
		{"recognition", signals.Env_TopicRecognition},
	} {
		topicId := os.Getenv(source.env)
		if !mirror.ValidTopicId(topicId) {
			logger.Warnf("ingest: skipping %s: invalid or missing topic id %q in %s", source.name, topicId, source.env)
			continue
		}
		sources = append(sources, models.Source{Name: source.name, TopicId: topicId})
	}
	return sources
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); len(value) > 0 {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return fallback
}
