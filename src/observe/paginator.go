package observe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Paginator wraps the chain reader and splits any request spanning more
// than the configured batch size into contiguous sub-ranges, each with its
// own linear retry policy.
type Paginator struct {
	log   *logrus.Entry
	chain Chain

	defaultBatchSize uint64
	maxBatchSize     uint64
	maxRetries       int
	retryDelay       time.Duration
}

func NewPaginator(config *config.Observer, chain Chain) (self *Paginator, err error) {
	if config.PaginationDefaultBatchSize == 0 || config.PaginationDefaultBatchSize > config.PaginationMaxBatchSize {
		err = fmt.Errorf("invalid pagination batch sizes: default %d, max %d",
			config.PaginationDefaultBatchSize, config.PaginationMaxBatchSize)
		return
	}

	self = new(Paginator)
	self.log = logger.NewSublogger("paginator")
	self.chain = chain
	self.defaultBatchSize = config.PaginationDefaultBatchSize
	self.maxBatchSize = config.PaginationMaxBatchSize
	self.maxRetries = config.MaxRetries
	self.retryDelay = config.RetryDelay
	return
}

// GetRange walks [fromBlock, toBlock] in sub-ranges. A sub-range whose
// final attempt fails aborts the whole walk with the last error, already
// returned prefixes of earlier calls stay valid.
func (self *Paginator) GetRange(ctx context.Context, fromBlock, toBlock uint64, opts eth.RangeOpts) (records []eth.AnchorRecord, err error) {
	if toBlock < fromBlock {
		err = fmt.Errorf("invalid block range: %d..%d", fromBlock, toBlock)
		return
	}

	if opts.MaxRange == 0 {
		opts.MaxRange = self.maxBatchSize
	}

	for subFrom := fromBlock; ; {
		subTo := toBlock
		if subTo-subFrom+1 > self.defaultBatchSize {
			subTo = subFrom + self.defaultBatchSize - 1
		}

		var batch []eth.AnchorRecord
		batch, err = self.getSubRange(ctx, subFrom, subTo, opts)
		if err != nil {
			self.log.WithError(err).
				WithField("from", subFrom).
				WithField("to", subTo).
				Error("Sub-range failed after retries, aborting walk")
			return nil, err
		}

		records = append(records, batch...)

		if subTo == toBlock {
			break
		}
		subFrom = subTo + 1
	}

	return
}

func (self *Paginator) getSubRange(ctx context.Context, fromBlock, toBlock uint64, opts eth.RangeOpts) (records []eth.AnchorRecord, err error) {
	policy := &linearBackOff{
		delay:       self.retryDelay,
		maxAttempts: self.maxRetries,
	}

	err = backoff.Retry(func() (err error) {
		records, err = self.chain.GetRange(ctx, fromBlock, toBlock, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			self.log.WithError(err).
				WithField("from", fromBlock).
				WithField("to", toBlock).
				Warn("Chain read failed, retrying")
		}
		return
	}, backoff.WithContext(policy, ctx))
	return
}

// Linear retry policy: attempt i sleeps delay*i, up to maxAttempts
// attempts in total.
type linearBackOff struct {
	delay       time.Duration
	maxAttempts int
	attempt     int
}

func (self *linearBackOff) NextBackOff() time.Duration {
	self.attempt++
	if self.attempt >= self.maxAttempts {
		return backoff.Stop
	}
	return self.delay * time.Duration(self.attempt)
}

func (self *linearBackOff) Reset() {
	self.attempt = 0
}
