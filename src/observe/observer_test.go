package observe

import (
	"time"

	"github.com/anchornet/observer/src/utils/config"
)

type testHarness struct {
	observer     *Observer
	chain        *fakeChain
	transactions *fakeTransactionStore
	operations   *fakeOperationStore
	unresolvable *fakeUnresolvableStore
	processor    *fakeProcessor
	deletions    *deletionLog
}

func newTestHarness(conf *config.Config, chain *fakeChain) *testHarness {
	deletions := new(deletionLog)

	self := &testHarness{
		chain:        chain,
		transactions: &fakeTransactionStore{deletions: deletions},
		operations:   &fakeOperationStore{deletions: deletions},
		unresolvable: newFakeUnresolvableStore(),
		processor:    new(fakeProcessor),
		deletions:    deletions,
	}
	self.unresolvable.deletions = deletions

	versions := NewVersionManager([]ProtocolVersion{
		{Name: "1.0", StartTime: 0, Processor: self.processor},
	})

	self.observer = NewObserver(conf).
		WithChain(chain).
		WithTransactionStore(self.transactions).
		WithOperationStore(self.operations).
		WithUnresolvableStore(self.unresolvable).
		WithVersionManager(versions)

	// Normally set up by run()
	self.observer.paginator, _ = NewPaginator(&conf.Observer, chain)
	self.observer.throughput = NewThroughputLimiter(&conf.Observer, versions)

	return self
}

func testConfig() *config.Config {
	conf := config.Default()
	conf.Observer.RateLimitDelay = time.Millisecond
	conf.Observer.RetryDelay = time.Millisecond
	conf.Observer.ObservingInterval = 10 * time.Millisecond
	return conf
}
