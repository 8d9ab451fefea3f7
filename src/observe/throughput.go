package observe

import (
	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/logger"

	"github.com/sirupsen/logrus"
)

// ThroughputLimiter caps how many records from the same block are admitted
// for processing in one call, per protocol version. Once a block runs over
// its cap nothing after it is admitted either: the admitted set is always
// a prefix of the chronological input, so the cursor never advances past a
// dropped record. Dropped records get picked up again on the next
// iteration.
type ThroughputLimiter struct {
	log      *logrus.Entry
	versions VersionManager

	defaultCap    int
	capsByVersion map[string]int
}

func NewThroughputLimiter(config *config.Observer, versions VersionManager) (self *ThroughputLimiter) {
	self = new(ThroughputLimiter)
	self.log = logger.NewSublogger("throughput-limiter")
	self.versions = versions
	self.defaultCap = config.MaxRecordsPerBlock
	self.capsByVersion = config.MaxRecordsPerBlockByVersion
	return
}

func (self *ThroughputLimiter) capFor(transactionTime uint64) int {
	name := self.versions.VersionName(transactionTime)
	if cap, ok := self.capsByVersion[name]; ok {
		return cap
	}
	return self.defaultCap
}

// Admit expects records in chronological order, the way the chain reader
// returns them.
func (self *ThroughputLimiter) Admit(records []eth.AnchorRecord) (admitted []eth.AnchorRecord) {
	admitted = make([]eth.AnchorRecord, 0, len(records))
	perBlock := make(map[uint64]int)

	for i, record := range records {
		if perBlock[record.TransactionTime] >= self.capFor(record.TransactionTime) {
			// Refusing everything from here on keeps the admitted set a
			// contiguous prefix
			self.log.WithField("block", record.TransactionTime).
				WithField("dropped", len(records)-i).
				WithField("admitted", len(admitted)).
				Debug("Throughput cap reached, deferring records to the next iteration")
			return
		}
		perBlock[record.TransactionTime]++
		admitted = append(admitted, record)
	}
	return
}
