package publisher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding"
	"errors"
	"fmt"
	"time"

	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/task"

	"github.com/redis/go-redis/v9"
)

// Forwards messages to a Redis channel
type RedisPublisher[In encoding.BinaryMarshaler] struct {
	*task.Task

	redisConfig config.Redis

	client      *redis.Client
	channelName string
	input       chan In
}

func NewRedisPublisher[In encoding.BinaryMarshaler](config *config.Config, name string) (self *RedisPublisher[In]) {
	self = new(RedisPublisher[In])

	self.redisConfig = config.Redis
	self.channelName = config.Redis.ChannelName

	self.Task = task.NewTask(config, name).
		WithSubtaskFunc(self.run).
		WithOnBeforeStart(self.connect).
		WithOnAfterStop(self.disconnect).
		WithWorkerPool(config.Redis.MaxOpenConns)

	return
}

func (self *RedisPublisher[In]) WithInputChannel(v chan In) *RedisPublisher[In] {
	self.input = v
	return self
}

func (self *RedisPublisher[In]) WithChannelName(v string) *RedisPublisher[In] {
	self.channelName = v
	return self
}

func (self *RedisPublisher[In]) disconnect() {
	err := self.client.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close connection")
	}
}

func (self *RedisPublisher[In]) connect() (err error) {
	opts := redis.Options{
		ClientName:   fmt.Sprintf("observer/%s", self.Name),
		Addr:         fmt.Sprintf("%s:%d", self.redisConfig.Host, self.redisConfig.Port),
		Password:     self.redisConfig.Password,
		Username:     self.redisConfig.User,
		DB:           self.redisConfig.DB,
		MaxIdleConns: self.redisConfig.MaxIdleConns,
		PoolSize:     self.redisConfig.MaxOpenConns,
		DialTimeout:  self.redisConfig.ConnectTimeout,
		ReadTimeout:  self.redisConfig.RequestTimeout,
		WriteTimeout: self.redisConfig.RequestTimeout,
	}

	if self.redisConfig.EnableTLS {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM([]byte(self.redisConfig.CaCert)) {
			return errors.New("failed to append CA cert to pool")
		}

		cert, err := tls.X509KeyPair([]byte(self.redisConfig.ClientCert), []byte(self.redisConfig.ClientKey))
		if err != nil {
			self.Log.WithError(err).Error("Failed to load client cert")
			return err
		}

		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: false,
			RootCAs:            caCertPool,
			ClientCAs:          caCertPool,
			Certificates:       []tls.Certificate{cert},
		}
	}

	self.client = redis.NewClient(&opts)

	ctx, cancel := context.WithTimeout(context.Background(), self.redisConfig.ConnectTimeout)
	defer cancel()
	err = self.client.Ping(ctx).Err()
	if err != nil {
		self.Log.WithError(err).Error("Failed to ping Redis")
		return
	}

	return
}

func (self *RedisPublisher[In]) run() (err error) {
	for payload := range self.input {
		payload := payload
		self.SubmitToWorker(func() {
			err := task.NewRetry().
				WithContext(self.Ctx).
				WithMaxElapsedTime(5 * time.Minute).
				WithMaxInterval(30 * time.Second).
				WithOnError(func(err error, isDurationAcceptable bool) error {
					if errors.Is(err, context.Canceled) && self.IsStopping.Load() {
						return err
					}
					self.Log.WithError(err).Error("Failed to publish message, retrying")
					return err
				}).
				Run(func() (err error) {
					return self.client.Publish(self.Ctx, self.channelName, payload).Err()
				})
			if err != nil {
				self.Log.WithError(err).Error("Failed to publish message, giving up")
			}
		})
	}
	return nil
}
