// This file orchestrates the image-to-bw service, initializing and running
// the NATS worker that converts rendered page PNGs into 1-bit black-and-white
// PNGs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/image-to-bw-service/internal/bwconvert"
)

// Config represents the overall configuration structure for the
// image-to-bw-service.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Paths      PathsConfig      `toml:"paths"`
	Conversion ConversionConfig `toml:"conversion"`
}

// PathsConfig holds common path configurations.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// NATSConfig holds NATS-specific configuration for the image-to-bw-service.
type NATSConfig struct {
	URL                  string `toml:"url"`
	PNGStreamName        string `toml:"png_stream_name"`
	PNGConsumerName      string `toml:"png_consumer_name"`
	PNGCreatedSubject    string `toml:"png_created_subject"`
	PNGObjectStoreBucket string `toml:"png_object_store_bucket"`
	BWStreamName         string `toml:"bw_stream_name"`
	BWCreatedSubject     string `toml:"bw_created_subject"`
	BWObjectStoreBucket  string `toml:"bw_object_store_bucket"`
}

// ConversionConfig holds the dithering parameters applied to every page.
type ConversionConfig struct {
	Threshold int  `toml:"threshold"`
	Invert    bool `toml:"invert"`
}

// job represents the context for processing a single message.
type job struct {
	msg          jetstream.Msg
	jetStream    jetstream.JetStream
	pngStore     jetstream.ObjectStore
	bwStore      jetstream.ObjectStore
	cfg          *Config
	appLogger    *logger.Logger
	event        *events.PNGCreatedEvent
	header       *events.EventHeader
	workDir      string
	localPNGPath string
	localBWPath  string
}

const (
	natsFetchTimeout = 5 * time.Second
	ackWait          = 30 * time.Second
)

// configURL locates the shared TOML configuration served by the project's
// configuration endpoint.
var configURL = os.Getenv("IMAGE_TO_BW_CONFIG_URL")

// main is the entry point of the application.
func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runErr := run(ctx)
	if runErr != nil {
		log.Printf("Fatal application error: %v", runErr)
		os.Exit(1)
	}

	log.Println("Application shut down gracefully.")
}

// run initializes all components and starts the message processing loop.
func run(ctx context.Context) error {
	cfg, appLogger, setupErr := setupConfigAndLogger()
	if setupErr != nil {
		return setupErr
	}
	defer func() {
		if closeErr := appLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close app logger: %v", closeErr)
		}
	}()

	natsConnection, connErr := nats.Connect(cfg.NATS.URL)
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connErr)
	}
	defer natsConnection.Close()
	appLogger.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	jsSetupErr := setupJetStream(ctx, jetStream, cfg)
	if jsSetupErr != nil {
		return fmt.Errorf("failed to set up JetStream resources: %w", jsSetupErr)
	}

	consumer, consumerErr := jetStream.Consumer(
		ctx,
		cfg.NATS.PNGStreamName,
		cfg.NATS.PNGConsumerName,
	)
	if consumerErr != nil {
		return fmt.Errorf("failed to get consumer: %w", consumerErr)
	}

	appLogger.Info("Worker is running, listening for jobs on '%s'...", cfg.NATS.PNGCreatedSubject)

	return processMessages(ctx, consumer, jetStream, cfg, appLogger)
}

// setupConfigAndLogger loads configuration and sets up the main application logger.
func setupConfigAndLogger() (*Config, *logger.Logger, error) {
	var cfg Config

	tempLogger, tempLoggerErr := logger.New(os.TempDir(), "image-to-bw-bootstrap.log")
	if tempLoggerErr != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", tempLoggerErr)
	}
	defer func() {
		if closeErr := tempLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close temp logger: %v", closeErr)
		}
	}()

	loadErr := configurator.LoadFromURL(configURL, &cfg, tempLogger)
	if loadErr != nil {
		return nil, nil, fmt.Errorf(
			"failed to load configuration from URL %s: %w",
			configURL,
			loadErr,
		)
	}
	log.Printf("Configuration loaded from %s", configURL)

	appLogger, loggerErr := logger.New(cfg.Paths.BaseLogsDir, "image-to-bw-service.log")
	if loggerErr != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", loggerErr)
	}

	return &cfg, appLogger, nil
}

// setupJetStream ensures all required NATS streams and object stores exist.
func setupJetStream(ctx context.Context, jetStream jetstream.JetStream, cfg *Config) error {
	streamCfg := newStreamConfig(cfg.NATS.PNGStreamName, cfg.NATS.PNGCreatedSubject)
	_, streamErr := jetStream.CreateStream(ctx, *streamCfg)
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create PNG stream: %w", streamErr)
	}

	consumerCfg := newConsumerConfig(cfg)
	stream, streamErr := jetStream.Stream(ctx, cfg.NATS.PNGStreamName)
	if streamErr != nil {
		return fmt.Errorf("failed to get PNG stream handle: %w", streamErr)
	}
	_, consumerErr := stream.CreateOrUpdateConsumer(ctx, *consumerCfg)
	if consumerErr != nil {
		return fmt.Errorf("failed to create PNG consumer: %w", consumerErr)
	}

	bwStreamCfg := newStreamConfig(cfg.NATS.BWStreamName, cfg.NATS.BWCreatedSubject)
	_, bwStreamErr := jetStream.CreateStream(ctx, *bwStreamCfg)
	if bwStreamErr != nil && !errors.Is(bwStreamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create BW stream: %w", bwStreamErr)
	}

	for _, bucket := range []string{cfg.NATS.PNGObjectStoreBucket, cfg.NATS.BWObjectStoreBucket} {
		objStoreCfg := newObjectStoreConfig(bucket)
		_, objStoreErr := jetStream.CreateObjectStore(ctx, *objStoreCfg)
		if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
			return fmt.Errorf("failed to create object store '%s': %w", bucket, objStoreErr)
		}
	}

	return nil
}

func newStreamConfig(name, subject string) *jetstream.StreamConfig {
	return &jetstream.StreamConfig{
		Name:                   name,
		Description:            "",
		Subjects:               []string{subject},
		Retention:              jetstream.WorkQueuePolicy,
		MaxConsumers:           -1,
		MaxMsgs:                -1,
		MaxBytes:               -1,
		Discard:                jetstream.DiscardOld,
		DiscardNewPerSubject:   false,
		MaxAge:                 0,
		MaxMsgsPerSubject:      -1,
		MaxMsgSize:             -1,
		Storage:                jetstream.FileStorage,
		Replicas:               1,
		NoAck:                  false,
		Duplicates:             0,
		Placement:              nil,
		Mirror:                 nil,
		Sources:                nil,
		Sealed:                 false,
		DenyDelete:             false,
		DenyPurge:              false,
		AllowRollup:            false,
		Compression:            jetstream.NoCompression,
		FirstSeq:               0,
		SubjectTransform:       nil,
		RePublish:              nil,
		AllowDirect:            false,
		MirrorDirect:           false,
		ConsumerLimits:         jetstream.StreamConsumerLimits{},
		Metadata:               nil,
		Template:               "",
		AllowMsgTTL:            false,
		SubjectDeleteMarkerTTL: 0,
	}
}

func newConsumerConfig(cfg *Config) *jetstream.ConsumerConfig {
	return &jetstream.ConsumerConfig{
		Durable:            cfg.NATS.PNGConsumerName,
		Name:               "",
		Description:        "",
		FilterSubject:      cfg.NATS.PNGCreatedSubject,
		AckPolicy:          jetstream.AckExplicitPolicy,
		AckWait:            ackWait,
		MaxDeliver:         -1,
		DeliverPolicy:      jetstream.DeliverAllPolicy,
		OptStartSeq:        0,
		OptStartTime:       nil,
		BackOff:            nil,
		ReplayPolicy:       jetstream.ReplayInstantPolicy,
		RateLimit:          0,
		SampleFrequency:    "",
		MaxWaiting:         0,
		MaxAckPending:      -1,
		HeadersOnly:        false,
		MaxRequestBatch:    0,
		MaxRequestExpires:  0,
		MaxRequestMaxBytes: 0,
		InactiveThreshold:  0,
		Replicas:           0,
		MemoryStorage:      false,
		FilterSubjects:     nil,
		Metadata:           nil,
		PauseUntil:         nil,
		PriorityPolicy:     0,
		PinnedTTL:          0,
		PriorityGroups:     nil,
		DeliverSubject:     "",
		DeliverGroup:       "",
		FlowControl:        false,
		IdleHeartbeat:      0,
	}
}

func newObjectStoreConfig(bucket string) *jetstream.ObjectStoreConfig {
	return &jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "",
		TTL:         0,
		MaxBytes:    -1,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Compression: false,
		Metadata:    nil,
	}
}

// processMessages implements the core worker loop.
func processMessages(
	ctx context.Context,
	consumer jetstream.Consumer,
	jetStream jetstream.JetStream,
	cfg *Config,
	appLogger *logger.Logger,
) error {
	pngStore, pngStoreErr := jetStream.ObjectStore(ctx, cfg.NATS.PNGObjectStoreBucket)
	if pngStoreErr != nil {
		return fmt.Errorf("failed to bind to PNG object store: %w", pngStoreErr)
	}
	bwStore, bwStoreErr := jetStream.ObjectStore(ctx, cfg.NATS.BWObjectStoreBucket)
	if bwStoreErr != nil {
		return fmt.Errorf("failed to bind to BW object store: %w", bwStoreErr)
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context error in message loop: %w", ctxErr)
		}
		batch, fetchErr := consumer.Fetch(1, jetstream.FetchMaxWait(natsFetchTimeout))
		if fetchErr != nil {
			if errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, nats.ErrTimeout) {
				continue
			}
			appLogger.Error("Error fetching messages: %v", fetchErr)
			continue
		}
		for msg := range batch.Messages() {
			handleMessage(ctx, msg, jetStream, pngStore, bwStore, cfg, appLogger)
		}
		if batchErr := batch.Error(); batchErr != nil {
			appLogger.Error("Error during message batch processing: %v", batchErr)
		}
	}
}

// handleMessage processes a single message.
func handleMessage(
	ctx context.Context, msg jetstream.Msg, jetStream jetstream.JetStream,
	pngStore, bwStore jetstream.ObjectStore, cfg *Config, appLogger *logger.Logger,
) {
	job, jobErr := newJob(msg, jetStream, pngStore, bwStore, cfg, appLogger)
	if jobErr != nil {
		appLogger.Error("Failed to create job: %v", jobErr)
		return
	}
	job.run(ctx)
}

// newJob creates a new job handler.
func newJob(
	msg jetstream.Msg, jetStream jetstream.JetStream, pngStore, bwStore jetstream.ObjectStore,
	cfg *Config, appLogger *logger.Logger,
) (*job, error) {
	event, unmarshalErr := unmarshalEvent(msg)
	if unmarshalErr != nil {
		return nil, unmarshalErr
	}
	return &job{
		msg:          msg,
		jetStream:    jetStream,
		pngStore:     pngStore,
		bwStore:      bwStore,
		cfg:          cfg,
		appLogger:    appLogger,
		event:        event,
		header:       &event.Header,
		workDir:      "", // Will be set by setupWorkDir
		localPNGPath: "", // Will be set by setupWorkDir
		localBWPath:  "", // Will be set by setupWorkDir
	}, nil
}

// unmarshalEvent unmarshals the PNGCreatedEvent from a message.
func unmarshalEvent(msg jetstream.Msg) (*events.PNGCreatedEvent, error) {
	var event events.PNGCreatedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal PNGCreatedEvent: %w", err)
	}
	return &event, nil
}

// run executes the full lifecycle of a job.
func (j *job) run(ctx context.Context) {
	j.appLogger.Info(
		"Received job for WorkflowID [%s]: converting PNG key '%s'",
		j.header.WorkflowID,
		j.event.PNGKey,
	)
	if progErr := j.msg.InProgress(); progErr != nil {
		j.appLogger.Warn("Failed to send InProgress update: %v", progErr)
	}

	dirErr := j.setupWorkDir()
	if dirErr != nil {
		j.appLogger.Error(
			"Error setting up work directory for job [%s]: %v",
			j.header.WorkflowID,
			dirErr,
		)
		j.nak(dirErr)
		return
	}
	defer j.cleanupWorkDir()

	if downloadErr := j.downloadPNG(ctx); downloadErr != nil {
		j.appLogger.Error(
			"Error downloading PNG for job [%s]: %v",
			j.header.WorkflowID,
			downloadErr,
		)
		j.term(downloadErr)
		return
	}

	if convertErr := j.convertPNG(); convertErr != nil {
		j.appLogger.Error("Error converting PNG for job [%s]: %v", j.header.WorkflowID, convertErr)
		j.nak(convertErr)
		return
	}

	if publishErr := j.publishBW(ctx); publishErr != nil {
		j.appLogger.Error("Error publishing BW PNG for job [%s]: %v", j.header.WorkflowID, publishErr)
		j.nak(publishErr)
		return
	}

	j.ack()
}

func (j *job) setupWorkDir() error {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("bw-%s-", j.header.WorkflowID))
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	j.workDir = workDir
	j.localPNGPath = filepath.Join(workDir, filepath.Base(j.event.PNGKey))
	j.localBWPath = filepath.Join(workDir, "bw_"+filepath.Base(j.event.PNGKey))
	return nil
}

func (j *job) cleanupWorkDir() {
	if err := os.RemoveAll(j.workDir); err != nil {
		j.appLogger.Warn("Failed to remove temp directory '%s': %v", j.workDir, err)
	}
}

func (j *job) downloadPNG(ctx context.Context) error {
	err := j.pngStore.GetFile(ctx, j.event.PNGKey, j.localPNGPath)
	if err != nil {
		return fmt.Errorf("failed to get PNG '%s' from object store: %w", j.event.PNGKey, err)
	}
	return nil
}

// convertPNG runs the dithering pipeline on the downloaded page.
func (j *job) convertPNG() error {
	threshold := j.cfg.Conversion.Threshold
	if threshold <= 0 {
		threshold = bwconvert.DefaultThreshold
	}

	converter := bwconvert.NewConverter(bwconvert.Config{
		Diagnostics: nil,
		Threshold:   threshold,
		Invert:      j.cfg.Conversion.Invert,
		Verbose:     false,
	})

	outcome := converter.Convert(j.localPNGPath, j.localBWPath)
	if outcome != bwconvert.OutcomeOK {
		return fmt.Errorf("failed to convert '%s': %w", j.event.PNGKey, outcome.Err())
	}
	return nil
}

// publishBW uploads the converted PNG to the BW object store and publishes
// the corresponding event.
func (j *job) publishBW(ctx context.Context) error {
	objectName := fmt.Sprintf(
		"%s/%s/bw/%s",
		j.header.TenantID,
		j.header.WorkflowID,
		filepath.Base(j.event.PNGKey),
	)

	if uploadErr := uploadFileToObjectStore(ctx, j.bwStore, objectName, j.localBWPath); uploadErr != nil {
		return fmt.Errorf("failed to upload '%s': %w", objectName, uploadErr)
	}
	j.appLogger.Info("Job [%s]: Uploaded '%s'", j.header.WorkflowID, objectName)

	return j.publishBWCreatedEvent(ctx, objectName)
}

// publishBWCreatedEvent marshals and publishes the event announcing the
// converted page.
func (j *job) publishBWCreatedEvent(ctx context.Context, bwKey string) error {
	bwEvent := events.PNGCreatedEvent{
		Header: events.EventHeader{
			WorkflowID: j.header.WorkflowID,
			UserID:     j.header.UserID,
			TenantID:   j.header.TenantID,
			EventID:    uuid.New().String(),
			Timestamp:  time.Now(),
		},
		PNGKey:     bwKey,
		PageNumber: j.event.PageNumber,
		TotalPages: j.event.TotalPages,
	}
	eventJSON, marshalErr := json.Marshal(bwEvent)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal BW created event: %w", marshalErr)
	}
	_, pubErr := j.jetStream.Publish(ctx, j.cfg.NATS.BWCreatedSubject, eventJSON)
	if pubErr != nil {
		return fmt.Errorf("failed to publish BW created event: %w", pubErr)
	}
	return nil
}

func (j *job) ack() {
	if err := j.msg.Ack(); err != nil {
		j.appLogger.Error("Job [%s]: Failed to acknowledge message: %v", j.header.WorkflowID, err)
	} else {
		j.appLogger.Success("Job [%s]: Processing complete. Acknowledged.", j.header.WorkflowID)
	}
}

func (j *job) nak(reason error) {
	j.appLogger.Error("NAK'ing message for job [%s]: %v", j.header.WorkflowID, reason)
	if err := j.msg.Nak(); err != nil {
		j.appLogger.Error("Failed to NAK message: %v", err)
	}
}

func (j *job) term(reason error) {
	j.appLogger.Error("Terminating message for job [%s]: %v", j.header.WorkflowID, reason)
	if err := j.msg.Term(); err != nil {
		j.appLogger.Error("Failed to TERM message: %v", err)
	}
}

func uploadFileToObjectStore(
	ctx context.Context,
	store jetstream.ObjectStore,
	objectName, filePath string,
) error {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open file for upload: %w", openErr)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("Warning: failed to close file '%s': %v", filePath, closeErr)
		}
	}()

	meta := jetstream.ObjectMeta{
		Name:        objectName,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
	}
	_, putErr := store.Put(ctx, meta, file)
	if putErr != nil {
		return fmt.Errorf("failed to put file in object store: %w", putErr)
	}
	return nil
}
