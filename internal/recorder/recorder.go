package recorder

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "marketsync/config"
	"marketsync/internal/store"
	"marketsync/logger"
)

// Recorder periodically samples synced order books from the market store,
// flattens them into parquet files and uploads them to S3, partitioned by
// date and symbol. It is optional and disabled by default.
type Recorder struct {
	config   *appconfig.Config
	store    *store.Store
	s3Client *s3.Client
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	filesWritten int64
	rowsWritten  int64
}

// NewRecorder configures the AWS SDK and validates credentials.
func NewRecorder(cfg *appconfig.Config, st *store.Store) (*Recorder, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Recorder.S3.Region),
	}
	if cfg.Recorder.S3.AccessKeyID != "" && cfg.Recorder.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Recorder.S3.AccessKeyID,
				cfg.Recorder.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("recorder").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Recorder.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Recorder.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Recorder.S3.PathStyle
	})

	log.WithComponent("recorder").WithFields(logger.Fields{
		"region": cfg.Recorder.S3.Region,
		"bucket": cfg.Recorder.S3.Bucket,
	}).Debug("recorder initialized")

	return &Recorder{
		config:   cfg,
		store:    st,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
	}, nil
}

// Start launches the sampling worker.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"flush_interval": r.config.Recorder.FlushInterval.String(),
	}).Info("starting recorder")

	r.wg.Add(1)
	go r.sampleWorker()
	return nil
}

// Stop waits for the sampling worker; the final sample is flushed on context
// cancellation.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("recorder").Info("stopping recorder")
	r.wg.Wait()
	r.log.WithComponent("recorder").Info("recorder stopped")
}

func (r *Recorder) sampleWorker() {
	defer r.wg.Done()
	log := r.log.WithComponent("recorder").WithFields(logger.Fields{"worker": "sampler"})

	ticker := time.NewTicker(r.config.Recorder.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.sampleAll(context.Background())
			log.Info("sampler stopped due to context cancellation")
			return
		case <-ticker.C:
			r.sampleAll(r.ctx)
		}
	}
}

func (r *Recorder) sampleAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, symbol := range r.store.Symbols() {
		if r.store.BookState(symbol) != store.BookSynced {
			continue
		}
		ob, ok := r.store.OrderBook(symbol)
		if !ok || len(ob.Bids)+len(ob.Asks) == 0 {
			continue
		}
		if err := r.writeBook(ctx, symbol, flattenBook(ob, now.UnixMilli()), now); err != nil {
			r.log.WithComponent("recorder").WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("failed to record order book sample")
		}
	}
}

func (r *Recorder) writeBook(ctx context.Context, symbol string, records []BookRecord, now time.Time) error {
	if len(records) == 0 {
		return nil
	}

	payload, err := encodeParquet(records)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s/date=%s/symbol=%s/%s-%s.parquet",
		r.config.Recorder.S3.Prefix,
		now.Format("2006-01-02"),
		symbol,
		now.Format("150405"),
		uuid.New().String()[:8],
	)

	if _, err := r.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.config.Recorder.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	}); err != nil {
		return fmt.Errorf("failed to upload parquet file: %w", err)
	}

	r.mu.Lock()
	r.filesWritten++
	r.rowsWritten += int64(len(records))
	r.mu.Unlock()

	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"symbol": symbol,
		"key":    key,
		"rows":   len(records),
		"bytes":  len(payload),
	}).Debug("order book sample recorded")
	return nil
}
