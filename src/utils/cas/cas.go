// Package cas reads content-addressed files referenced by anchor records.
package cas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var (
	// Content is not available, possibly not yet propagated.
	// Timed out reads map to this error as well.
	ErrNotFound = errors.New("cas content not found")

	// Content is larger than the caller allows
	ErrMaxSizeExceeded = errors.New("cas content exceeds maximum size")
)

// Reader is the capability the observer consumes. Write path is owned by
// the anchoring side and not provided here.
type Reader interface {
	Read(ctx context.Context, uri string, maxSize int64) ([]byte, error)
}

// Client reads files from an IPFS-style HTTP gateway.
type Client struct {
	log    *logrus.Entry
	config *config.Cas

	httpClient *resty.Client

	// Successful reads are immutable, safe to cache by URI
	contentCache *cache.Cache
}

func NewClient(config *config.Cas) (self *Client) {
	self = new(Client)
	self.log = logger.NewSublogger("cas")
	self.config = config

	self.httpClient = resty.New().
		SetBaseURL(config.GatewayUrl).
		SetTimeout(config.RequestTimeout)

	self.contentCache = cache.New(config.CacheTTL, 2*config.CacheTTL)

	return
}

// Read fetches the content behind uri. Timeouts and missing content both
// surface as ErrNotFound, oversized content as ErrMaxSizeExceeded.
func (self *Client) Read(ctx context.Context, uri string, maxSize int64) (content []byte, err error) {
	if cached, ok := self.contentCache.Get(uri); ok {
		content = cached.([]byte)
		if maxSize > 0 && int64(len(content)) > maxSize {
			return nil, ErrMaxSizeExceeded
		}
		return
	}

	resp, err := self.httpClient.R().
		SetContext(ctx).
		Get("/" + uri)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Unreachable gateway and timed out downloads are retryable later
		self.log.WithError(err).WithField("uri", uri).Debug("CAS read failed")
		return nil, ErrNotFound
	}

	if resp.StatusCode() == 404 || resp.StatusCode() == 504 {
		return nil, ErrNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("cas gateway returned %d for %s", resp.StatusCode(), uri)
	}

	content = resp.Body()
	if maxSize > 0 && int64(len(content)) > maxSize {
		return nil, ErrMaxSizeExceeded
	}

	self.contentCache.Set(uri, content, cache.DefaultExpiration)

	return
}

// ReadWithTimeout bounds a single read independently of the client wide
// request timeout.
func (self *Client) ReadWithTimeout(ctx context.Context, uri string, maxSize int64, timeout time.Duration) (content []byte, err error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err = self.Read(readCtx, uri, maxSize)
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrNotFound
	}
	return
}
