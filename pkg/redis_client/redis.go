package redis_client

import (
	"context"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/busspass/busspass/pkg/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var Client *redis.Client
var QueueConnection rmq.Connection

// Connect opens the shared Redis client and the queue connection on top of
// it, retrying the first ping for up to maxWait.
func Connect(redisConfig config.RedisConfig, maxWait time.Duration) error {
	options := &redis.Options{
		Addr: redisConfig.Address,
		DB:   redisConfig.Database,
	}
	if redisConfig.Password != "" {
		options.Password = redisConfig.Password
	}

	client := redis.NewClient(options)

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = maxWait

	err := backoff.RetryNotify(func() error {
		return client.Ping(context.Background()).Err()
	}, retry, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("address", redisConfig.Address).Dur("retry", wait).Msg("Redis not reachable yet")
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("connect to redis %s: %w", redisConfig.Address, err)
	}

	queueConnection, err := rmq.OpenConnectionWithRedisClient(redisConfig.KeyPrefix, client, nil)
	if err != nil {
		client.Close()
		return err
	}

	Client = client
	QueueConnection = queueConnection

	log.Info().Str("address", redisConfig.Address).Int("database", redisConfig.Database).Msg("Connected to Redis")

	return nil
}

// Key namespaces a Redis key with the configured prefix.
func Key(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}

	return key
}
