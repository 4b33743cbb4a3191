package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jonwraymond/todos/attachment"
	"github.com/jonwraymond/todos/auth"
	"github.com/jonwraymond/todos/cache"
	"github.com/jonwraymond/todos/config"
	"github.com/jonwraymond/todos/health"
	"github.com/jonwraymond/todos/observe"
	"github.com/jonwraymond/todos/task"
	"github.com/jonwraymond/todos/task/dynamostore"
	"github.com/jonwraymond/todos/task/pgstore"
)

const healthTimeout = 5 * time.Second

// components holds everything built from a Config, plus what to release on
// exit.
type components struct {
	obs     observe.Observer
	mw      *observe.Middleware
	log     observe.Logger
	fetcher *auth.JWKSFetcher
	gate    *auth.Gate
	tasks   *task.Service
	health  *health.Aggregator
	closers []func() error
}

func (c *components) addCloser(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of creation and shuts the
// observer down.
func (c *components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if c.obs != nil {
		if err := c.obs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newObservability builds the observer and the middleware shared by every
// component.
func newObservability(ctx context.Context, cfg *config.Config) (*components, error) {
	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig(Version))
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("observe: %w", err)
	}
	return &components{
		obs:    obs,
		mw:     mw,
		log:    obs.Logger(),
		health: health.NewAggregator(healthTimeout),
	}, nil
}

// buildAuth wires key cache, fetcher, resolver, verifier and gate.
func (c *components) buildAuth(cfg *config.Config) {
	backend := c.keyCacheBackend(cfg)

	c.fetcher = auth.NewJWKSFetcher(auth.JWKSConfig{
		URL:              cfg.Auth.JWKSURL,
		Timeout:          cfg.Auth.FetchTimeout,
		Retries:          cfg.Auth.FetchRetries,
		RateLimit:        cfg.Auth.RateLimit,
		RateBurst:        cfg.Auth.RateBurst,
		BreakerThreshold: cfg.Auth.BreakerThreshold,
		BreakerReset:     cfg.Auth.BreakerReset,
		Middleware:       c.mw,
	})
	c.health.Register(c.fetcher)

	resolver := auth.NewKeyResolver(auth.NewKeyCache(backend, cfg.Auth.KeyCache.TTL), c.fetcher,
		auth.WithResolverLogger(c.log))
	verifier := auth.NewVerifier(resolver, auth.VerifierConfig{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	c.gate = auth.NewGate(verifier, auth.WithLogger(c.log), auth.WithMeter(c.obs.Meter()))
}

func (c *components) keyCacheBackend(cfg *config.Config) cache.Cache {
	policy := cache.DefaultPolicy()
	if cfg.Auth.KeyCache.TTL > 0 {
		policy = cache.ExpiringPolicy(cfg.Auth.KeyCache.TTL)
	}
	switch cfg.Auth.KeyCache.Backend {
	case config.CacheRedis:
		rc := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, policy)
		c.addCloser(rc.Close)
		// Redis only saves fetches; a lost connection degrades to fetching.
		c.health.Register(health.NewOptionalPingChecker("key_cache", rc))
		return rc
	case config.CacheNone:
		return cache.NopCache{}
	default:
		return cache.NewMemoryCache(policy)
	}
}

// buildTasks wires the task store, the attachment signer and the service.
func (c *components) buildTasks(ctx context.Context, cfg *config.Config) error {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	store, err := c.taskStore(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			o.UsePathStyle = true
		}
	})
	signer, err := attachment.NewS3Signer(s3Client, cfg.Attachments.Bucket,
		time.Duration(cfg.Attachments.URLExpiration)*time.Second)
	if err != nil {
		return err
	}
	c.log.Info(ctx, "attachment signer ready",
		observe.Field{Key: "bucket", Value: cfg.Attachments.Bucket},
		observe.Field{Key: "url_expiration", Value: signer.Expiration().String()},
	)

	c.tasks = task.NewService(task.ServiceConfig{
		Store:         store,
		Signer:        signer,
		Timeout:       cfg.Store.Timeout,
		MaxConcurrent: cfg.Store.MaxConcurrent,
		MaxWait:       cfg.Store.MaxWait,
		Middleware:    c.mw,
	})
	return nil
}

func (c *components) taskStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (task.Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := pgstore.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		c.addCloser(func() error { pg.Close(); return nil })
		c.health.Register(health.NewPingChecker("store", pg))
		return pg, nil
	case config.StoreMemory:
		ms := task.NewMemoryStore()
		c.health.Register(ms)
		return ms, nil
	default:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		ds := dynamostore.New(client, cfg.Store.Table, cfg.Store.Index)
		c.health.Register(ds)
		return ds, nil
	}
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	return awsCfg, nil
}
