package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	"github.com/vhvplatform/go-esign-delivery-service/internal/consumer"
	"github.com/vhvplatform/go-esign-delivery-service/internal/crypto"
	"github.com/vhvplatform/go-esign-delivery-service/internal/delivery"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/handler"
	"github.com/vhvplatform/go-esign-delivery-service/internal/jobs"
	"github.com/vhvplatform/go-esign-delivery-service/internal/lock"
	"github.com/vhvplatform/go-esign-delivery-service/internal/pdf"
	"github.com/vhvplatform/go-esign-delivery-service/internal/provider"
	"github.com/vhvplatform/go-esign-delivery-service/internal/queue"
	"github.com/vhvplatform/go-esign-delivery-service/internal/repository"
	"github.com/vhvplatform/go-esign-delivery-service/internal/scheduler"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/config"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/mongodb"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/rabbitmq"
	redisclient "github.com/vhvplatform/go-esign-delivery-service/internal/shared/redis"
	"github.com/vhvplatform/go-esign-delivery-service/internal/tenant"
	"github.com/vhvplatform/go-esign-delivery-service/internal/worker"
)

// app holds the wired service
type app struct {
	scheduler *scheduler.Scheduler
	consumer  *consumer.EventConsumer
	checks    map[string]handler.Pinger
	closers   []func(ctx context.Context) error
	log       *logger.Logger
}

type queues struct {
	notifications queue.JobQueue[*domain.NotificationJob]
	pdfs          queue.JobQueue[*domain.PDFJob]
}

// newApp connects to every backing service and wires the jobs. The event
// consumer is only built when withConsumer is set and RabbitMQ is enabled.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, withConsumer bool) (_ *app, err error) {
	a := &app{checks: make(map[string]handler.Pinger), log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	mongo, err := mongodb.NewMongoClient(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	a.closers = append(a.closers, mongo.Disconnect)
	a.checks["mongodb"] = mongo

	cipher, err := crypto.NewAESCipher(cfg.Crypto.EncryptionKey, cfg.Crypto.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise credential cipher: %w", err)
	}

	directory := repository.NewCompanyRepository(mongo)
	resolver := tenant.NewMongoResolver(mongo)
	iterator := tenant.NewIterator(directory, resolver, cfg.Jobs.MaxConcurrentTenants, log)

	registry := provider.NewRegistry(cfg.AWS.Region,
		provider.WithEndpoint(cfg.AWS.Endpoint),
		provider.WithLocalRoot(cfg.Storage.LocalRoot),
	)
	auditLog := audit.NewLogger(audit.StoreWriter{}, log)
	limiter := delivery.NewTenantRateLimiter(cfg.Notifications.RateLimitPerTenant, cfg.Notifications.RateLimitBurst)
	unit := delivery.NewUnit(directory, resolver, cipher, registry, auditLog, limiter, log.With("component", "delivery"))

	renderer := pdf.NewHTTPRenderer(cfg.PDF.ServiceURL, cfg.PDF.APIKey, cfg.PDF.Timeout)
	pdfGenerator := jobs.NewPDFGenerator(renderer, auditLog, iterator, directory, resolver, cfg.Jobs.PDFBatchSize, log)
	reminder := jobs.NewReminderJob(unit, auditLog, iterator, cfg.Notifications.AppURL, log)
	retention := jobs.NewRetentionJob(registry, cipher, auditLog, iterator, log)
	expiry := jobs.NewExpiryJob(auditLog, iterator, cfg.Jobs.ExpiryBatchSize, log)

	q, err := buildQueues(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	policy := worker.RetryPolicy{
		MaxRetries:     cfg.Notifications.MaxRetries,
		RetryPermanent: cfg.Notifications.RetryPermanentErrors,
	}
	notificationWorker := worker.New(q.notifications, func(ctx context.Context, job *domain.NotificationJob) error {
		_, err := unit.Deliver(ctx, job)
		return err
	}, worker.Options{
		BatchSize:    cfg.Notifications.MaxBatchSize,
		PollInterval: cfg.SQS.PollInterval,
		Policy:       policy,
	}, log)
	pdfWorker := worker.New(q.pdfs, pdfGenerator.HandleQueued, worker.Options{
		BatchSize:    cfg.SQS.MaxMessages,
		PollInterval: cfg.SQS.PollInterval,
		Policy:       policy,
	}, log)

	locker := lock.Chain{lock.NewLocal()}
	if cfg.Redis.Enabled {
		rdb, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		a.checks["redis"] = rdb
		locker = append(locker, lock.NewRedis(rdb.Cmdable(), cfg.Redis.KeyPrefix, cfg.Jobs.LeaseTTL))
	}

	a.scheduler, err = scheduler.New(cfg.UseSQS, cfg.Jobs.Schedules, scheduler.Tasks{
		Expiry:             task(expiry.Run),
		Reminder:           task(reminder.Run),
		Retention:          task(retention.Run),
		PDF:                task(pdfGenerator.Run),
		Notifications:      task(notificationWorker.Drain),
		NotificationWorker: notificationWorker,
		PDFWorker:          pdfWorker,
	}, locker, log)
	if err != nil {
		return nil, err
	}

	if withConsumer && cfg.RabbitMQ.Enabled {
		rabbit, err := rabbitmq.NewRabbitMQClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.Prefetch)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rabbit.Close() })

		// Without SQS, signed documents are picked up by the PDF scan
		var pdfs queue.JobQueue[*domain.PDFJob]
		if cfg.UseSQS {
			pdfs = q.pdfs
		}
		a.consumer = consumer.NewEventConsumer(rabbit, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, q.notifications, pdfs, log)
	}

	return a, nil
}

func buildQueues(ctx context.Context, cfg *config.Config, log *logger.Logger) (queues, error) {
	if !cfg.UseSQS {
		return queues{
			notifications: queue.NewMemoryQueue[*domain.NotificationJob](scheduler.NameNotifications),
			pdfs:          queue.NewMemoryQueue[*domain.PDFJob](jobs.NamePDF),
		}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return queues{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})

	waitTime := int32(cfg.SQS.WaitTimeSeconds)
	notifications, err := queue.NewSQSQueue[*domain.NotificationJob](ctx, client, cfg.SQS.NotificationQueue, queue.SQSOptions{
		WaitTimeSeconds: waitTime,
		Schema:          queue.MustSchema(queue.NotificationJobSchema),
	}, log)
	if err != nil {
		return queues{}, err
	}
	pdfs, err := queue.NewSQSQueue[*domain.PDFJob](ctx, client, cfg.SQS.PDFQueue, queue.SQSOptions{
		WaitTimeSeconds: waitTime,
		Schema:          queue.MustSchema(queue.PDFJobSchema),
	}, log)
	if err != nil {
		return queues{}, err
	}
	return queues{notifications: notifications, pdfs: pdfs}, nil
}

// task adapts a typed job run to a scheduler task
func task[R any](run func(ctx context.Context) (R, error)) scheduler.Task {
	return func(ctx context.Context) (any, error) {
		return run(ctx)
	}
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("Failed to close connection", "error", err)
		}
	}
	a.closers = nil
}
