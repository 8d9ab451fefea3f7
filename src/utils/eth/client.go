package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/anchornet/observer/src/utils/anchor"
	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// Anchor event emitted by the anchor contract
const anchorABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"writer","type":"address"},{"indexed":false,"name":"anchorFileHash","type":"bytes32"},{"indexed":false,"name":"numberOfOperations","type":"uint256"},{"indexed":false,"name":"transactionNumber","type":"uint256"}],"name":"Anchor","type":"event"}]`

var (
	// The cursor's block hash no longer matches the chain at that height
	ErrInvalidCursor = errors.New("invalid transaction cursor")
)

// Client reads anchor records out of the anchor contract's log.
type Client struct {
	log    *logrus.Entry
	config *config.Chain

	client          *ethclient.Client
	contractAbi     abi.ABI
	contractAddress common.Address
	anchorEventId   common.Hash

	// Caps the RPC call rate towards the endpoint
	limiter ratelimit.Limiter

	deploymentBlock uint64
}

func NewClient(config *config.Chain) (self *Client, err error) {
	self = new(Client)
	self.log = logger.NewSublogger("chain-client")
	self.config = config

	self.client, err = ethclient.Dial(config.RpcUrl)
	if err != nil {
		return
	}

	self.contractAbi, err = abi.JSON(strings.NewReader(anchorABI))
	if err != nil {
		return
	}
	self.anchorEventId = self.contractAbi.Events["Anchor"].ID
	self.contractAddress = common.HexToAddress(config.AnchorContractAddress)

	if config.MaxRequestsPerSecond > 0 {
		self.limiter = ratelimit.New(config.MaxRequestsPerSecond)
	} else {
		self.limiter = ratelimit.NewUnlimited()
	}

	return
}

func (self *Client) WithDeploymentBlock(block uint64) *Client {
	self.deploymentBlock = block
	return self
}

func (self *Client) Close() {
	self.client.Close()
}

func (self *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	self.limiter.Take()
	return context.WithTimeout(ctx, self.config.RequestTimeout)
}

// GetLatestTime returns the height and hash of the chain tip.
func (self *Client) GetLatestTime(ctx context.Context) (out ChainTime, err error) {
	callCtx, cancel := self.callCtx(ctx)
	defer cancel()

	header, err := self.client.HeaderByNumber(callCtx, nil)
	if err != nil {
		return
	}

	out = ChainTime{
		Time: header.Number.Uint64(),
		Hash: header.Hash(),
	}
	return
}

func (self *Client) GetBlockNumberByHash(ctx context.Context, hash common.Hash) (height uint64, err error) {
	callCtx, cancel := self.callCtx(ctx)
	defer cancel()

	header, err := self.client.HeaderByHash(callCtx, hash)
	if err != nil {
		return
	}
	height = header.Number.Uint64()
	return
}

// GetRange translates a block range into the chronologically ordered list
// of anchor records emitted within it.
func (self *Client) GetRange(ctx context.Context, fromBlock, toBlock uint64, opts RangeOpts) (records []AnchorRecord, err error) {
	if toBlock < fromBlock {
		err = fmt.Errorf("invalid block range: %d..%d", fromBlock, toBlock)
		return
	}

	if opts.MaxRange > 0 && toBlock-fromBlock > opts.MaxRange {
		// Advisory only, the call may still succeed
		self.log.WithField("from", fromBlock).
			WithField("to", toBlock).
			WithField("max", opts.MaxRange).
			Warn("Requested range exceeds the maximum batch size")
	}

	topics := opts.Filter
	if topics == nil {
		topics = [][]common.Hash{{self.anchorEventId}}
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{self.contractAddress},
		Topics:    topics,
	}

	callCtx, cancel := self.callCtx(ctx)
	defer cancel()

	logs, err := self.client.FilterLogs(callCtx, query)
	if err != nil {
		return
	}

	// Header timestamps are looked up once per block
	timestamps := make(map[uint64]int64)

	records = make([]AnchorRecord, 0, len(logs))
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}

		var record AnchorRecord
		record, err = self.decodeAnchorLog(&vLog)
		if err != nil {
			self.log.WithError(err).
				WithField("block", vLog.BlockNumber).
				WithField("index", vLog.Index).
				Error("Failed to decode anchor log")
			return nil, err
		}

		if !opts.OmitTimestamp {
			timestamp, ok := timestamps[vLog.BlockNumber]
			if !ok {
				timestamp, err = self.getBlockTimestamp(ctx, vLog.BlockNumber)
				if err != nil {
					return nil, err
				}
				timestamps[vLog.BlockNumber] = timestamp
			}
			record.TransactionTimestamp = timestamp
		}

		records = append(records, record)
	}

	// Chronological by transaction number, ties resolved by log index
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TransactionNumber != records[j].TransactionNumber {
			return records[i].TransactionNumber < records[j].TransactionNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})

	return
}

// Read performs a cursor-driven incremental read. A nil cursor starts from
// the contract deployment block. moreTransactions is heuristic, true when
// the scan did not reach the chain tip.
func (self *Client) Read(ctx context.Context, cursor *Cursor) (moreTransactions bool, records []AnchorRecord, err error) {
	latest, err := self.GetLatestTime(ctx)
	if err != nil {
		return
	}

	fromBlock := self.deploymentBlock
	if cursor != nil {
		err = self.validateCursor(ctx, cursor)
		if err != nil {
			return
		}
		// The cursor's block may hold anchors past the cursor itself
		fromBlock = cursor.TransactionTime
	}

	if fromBlock > latest.Time {
		// Chain client is behind, nothing to read
		return
	}

	toBlock := latest.Time
	if self.config.ReadBatchSize > 0 && toBlock-fromBlock+1 > self.config.ReadBatchSize {
		toBlock = fromBlock + self.config.ReadBatchSize - 1
	}

	all, err := self.GetRange(ctx, fromBlock, toBlock, RangeOpts{})
	if err != nil {
		return
	}

	records = make([]AnchorRecord, 0, len(all))
	for _, record := range all {
		if cursor != nil && record.TransactionNumber <= cursor.TransactionNumber {
			continue
		}
		records = append(records, record)
	}

	moreTransactions = toBlock < latest.Time
	return
}

// GetFirstValidTransaction returns the newest record whose block hash still
// matches the chain. Records are expected newest first.
func (self *Client) GetFirstValidTransaction(ctx context.Context, records []AnchorRecord) (valid *AnchorRecord, err error) {
	for i := range records {
		record := records[i]

		var header *types.Header
		header, err = self.getHeaderByNumber(ctx, record.TransactionTime)
		if err != nil {
			return
		}

		if header.Hash() == common.HexToHash(record.TransactionTimeHash) {
			valid = &record
			return
		}
	}
	return
}

// GetDeploymentBlock returns the configured deployment block. When not
// configured it binary searches for the first block that carries the
// contract's code. O(log N) RPC calls, fallback only.
func (self *Client) GetDeploymentBlock(ctx context.Context) (block uint64, err error) {
	if self.deploymentBlock > 0 {
		block = self.deploymentBlock
		return
	}

	latest, err := self.GetLatestTime(ctx)
	if err != nil {
		return
	}

	self.log.Warn("Contract deployment block not configured, probing the chain")

	lo, hi := uint64(0), latest.Time
	for lo < hi {
		mid := lo + (hi-lo)/2

		var deployed bool
		deployed, err = self.hasCode(ctx, mid)
		if err != nil {
			return
		}

		if deployed {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	deployed, err := self.hasCode(ctx, lo)
	if err != nil {
		return
	}
	if !deployed {
		err = errors.New("anchor contract not found on the chain")
		return
	}

	self.deploymentBlock = lo
	block = lo
	return
}

func (self *Client) hasCode(ctx context.Context, block uint64) (deployed bool, err error) {
	callCtx, cancel := self.callCtx(ctx)
	defer cancel()

	code, err := self.client.CodeAt(callCtx, self.contractAddress, new(big.Int).SetUint64(block))
	if err != nil {
		return
	}
	deployed = len(code) > 0
	return
}

func (self *Client) validateCursor(ctx context.Context, cursor *Cursor) (err error) {
	header, err := self.getHeaderByNumber(ctx, cursor.TransactionTime)
	if errors.Is(err, ethereum.NotFound) {
		// The node doesn't know the height yet, same signal as a stale
		// hash. The caller decides whether it's a reorg or a lagging node.
		return ErrInvalidCursor
	}
	if err != nil {
		return
	}

	if header.Hash() != cursor.TransactionTimeHash {
		return ErrInvalidCursor
	}
	return
}

func (self *Client) getHeaderByNumber(ctx context.Context, height uint64) (header *types.Header, err error) {
	callCtx, cancel := self.callCtx(ctx)
	defer cancel()

	return self.client.HeaderByNumber(callCtx, new(big.Int).SetUint64(height))
}

func (self *Client) getBlockTimestamp(ctx context.Context, height uint64) (timestamp int64, err error) {
	header, err := self.getHeaderByNumber(ctx, height)
	if err != nil {
		return
	}
	timestamp = int64(header.Time)
	return
}

func (self *Client) decodeAnchorLog(vLog *types.Log) (record AnchorRecord, err error) {
	event, err := self.contractAbi.EventByID(vLog.Topics[0])
	if err != nil {
		return
	}

	eventMap := make(map[string]interface{})

	indexed := make([]abi.Argument, 0)
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	err = abi.ParseTopicsIntoMap(eventMap, indexed, vLog.Topics[1:])
	if err != nil {
		return
	}

	err = self.contractAbi.UnpackIntoMap(eventMap, event.Name, vLog.Data)
	if err != nil {
		return
	}

	anchorFileHash, ok := eventMap["anchorFileHash"].([32]byte)
	if !ok {
		err = errors.New("anchorFileHash missing in anchor log")
		return
	}
	numberOfOperations, ok := eventMap["numberOfOperations"].(*big.Int)
	if !ok {
		err = errors.New("numberOfOperations missing in anchor log")
		return
	}
	transactionNumber, ok := eventMap["transactionNumber"].(*big.Int)
	if !ok {
		err = errors.New("transactionNumber missing in anchor log")
		return
	}
	writer, ok := eventMap["writer"].(common.Address)
	if !ok {
		err = errors.New("writer missing in anchor log")
		return
	}

	record = AnchorRecord{
		TransactionNumber:   transactionNumber.Uint64(),
		TransactionTime:     vLog.BlockNumber,
		TransactionTimeHash: vLog.BlockHash.Hex(),
		AnchorString:        anchor.Serialize(numberOfOperations.Uint64(), anchor.UriFromDigest(anchorFileHash)),
		Writer:              writer.Hex(),
		LogIndex:            vLog.Index,
	}
	return
}
