package core

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"testing"

	"github.com/anchornet/observer/src/utils/anchor"
	"github.com/anchornet/observer/src/utils/cas"
	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestProcessorTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessorTestSuite))
}

type ProcessorTestSuite struct {
	suite.Suite
}

type fakeCas struct {
	files map[string][]byte
}

func (self *fakeCas) Read(ctx context.Context, uri string, maxSize int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, ok := self.files[uri]
	if !ok {
		return nil, cas.ErrNotFound
	}
	if maxSize > 0 && int64(len(content)) > maxSize {
		return nil, cas.ErrMaxSizeExceeded
	}
	return content, nil
}

// Stores content under its own multihash URI, the way a real CAS would
func (self *fakeCas) put(content []byte) string {
	uri := anchor.UriFromDigest(sha256.Sum256(content))
	self.files[uri] = content
	return uri
}

type fakeOperationStore struct {
	mtx        sync.Mutex
	operations []model.Operation
}

func (self *fakeOperationStore) InsertOrReplace(ctx context.Context, batch []model.Operation) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.operations = append(self.operations, batch...)
	return nil
}

type batchFixture struct {
	cas          *fakeCas
	store        *fakeOperationStore
	processor    *Processor
	record       eth.AnchorRecord
	coreIndexUri string
}

// Builds a complete batch: two creates, one recover, one deactivate and
// one update, with a chunk file and both proof files.
func newBatchFixture(declaredOperations uint64) *batchFixture {
	self := &batchFixture{
		cas:   &fakeCas{files: make(map[string][]byte)},
		store: new(fakeOperationStore),
	}

	chunk, _ := json.Marshal(ChunkFile{
		Deltas: []json.RawMessage{
			json.RawMessage(`{"d":"create-0"}`),
			json.RawMessage(`{"d":"create-1"}`),
			json.RawMessage(`{"d":"recover-0"}`),
			json.RawMessage(`{"d":"update-0"}`),
		},
	})
	chunkUri := self.cas.put(chunk)

	provisionalProof, _ := json.Marshal(ProofFile{
		Operations: ProofOperations{
			Update: []SignedPayload{{SignedData: json.RawMessage(`"update-jws"`)}},
		},
	})
	provisionalProofUri := self.cas.put(provisionalProof)

	provisional, _ := json.Marshal(ProvisionalIndexFile{
		ProvisionalProofFileUri: provisionalProofUri,
		Chunks:                  []ChunkReference{{ChunkFileUri: chunkUri}},
		Operations: &ProvisionalOperations{
			Update: []SignedReference{{DidSuffix: "suffix-update", RevealValue: "r"}},
		},
	})
	provisionalUri := self.cas.put(provisional)

	coreProof, _ := json.Marshal(ProofFile{
		Operations: ProofOperations{
			Recover:    []SignedPayload{{SignedData: json.RawMessage(`"recover-jws"`)}},
			Deactivate: []SignedPayload{{SignedData: json.RawMessage(`"deactivate-jws"`)}},
		},
	})
	coreProofUri := self.cas.put(coreProof)

	coreIndex, _ := json.Marshal(CoreIndexFile{
		ProvisionalIndexFileUri: provisionalUri,
		CoreProofFileUri:        coreProofUri,
		Operations: &CoreOperations{
			Create: []CreateReference{
				{SuffixData: json.RawMessage(`{"deltaHash":"a"}`)},
				{SuffixData: json.RawMessage(`{"deltaHash":"b"}`)},
			},
			Recover:    []SignedReference{{DidSuffix: "suffix-recover", RevealValue: "r"}},
			Deactivate: []SignedReference{{DidSuffix: "suffix-deactivate", RevealValue: "r"}},
		},
	})
	self.coreIndexUri = self.cas.put(coreIndex)

	self.record = eth.AnchorRecord{
		TransactionNumber: 42,
		TransactionTime:   1234,
		AnchorString:      anchor.Serialize(declaredOperations, self.coreIndexUri),
	}

	self.processor = NewProcessor(config.Default()).
		WithCas(self.cas).
		WithOperationStore(self.store)

	return self
}

func (s *ProcessorTestSuite) TestResolvesCompleteBatch() {
	f := newBatchFixture(5)

	resolved, err := f.processor.ProcessTransaction(context.Background(), f.record)
	require.NoError(s.T(), err)
	assert.True(s.T(), resolved)

	require.Len(s.T(), f.store.operations, 5)

	types := make([]string, 0, 5)
	for i, operation := range f.store.operations {
		types = append(types, operation.Type)
		assert.Equal(s.T(), uint64(42), operation.TransactionNumber)
		assert.Equal(s.T(), uint64(1234), operation.TransactionTime)
		assert.Equal(s.T(), i, operation.OperationIndex)
	}
	assert.Equal(s.T(), []string{"create", "create", "recover", "deactivate", "update"}, types)

	// Create suffixes are derived from the suffix data
	expected := anchor.UriFromDigest(sha256.Sum256([]byte(`{"deltaHash":"a"}`)))
	assert.Equal(s.T(), expected, f.store.operations[0].DidSuffix)

	// Deltas matched positionally, deactivate carries none
	assert.True(s.T(), f.store.operations[0].Delta.Valid)
	assert.False(s.T(), f.store.operations[3].Delta.Valid)
	assert.JSONEq(s.T(), `{"d":"update-0"}`, f.store.operations[4].Delta.String)

	// Signed data came from the proof files
	assert.Equal(s.T(), `"recover-jws"`, f.store.operations[2].SignedData.String)
	assert.Equal(s.T(), `"update-jws"`, f.store.operations[4].SignedData.String)
}

func (s *ProcessorTestSuite) TestMissingCoreIndexIsUnresolvable() {
	f := newBatchFixture(5)
	delete(f.cas.files, f.coreIndexUri)

	resolved, err := f.processor.ProcessTransaction(context.Background(), f.record)
	require.NoError(s.T(), err)
	assert.False(s.T(), resolved)
	assert.Empty(s.T(), f.store.operations)
}

func (s *ProcessorTestSuite) TestMalformedCoreIndexIsUnresolvable() {
	f := newBatchFixture(5)
	f.cas.files[f.coreIndexUri] = []byte("not json at all")

	resolved, err := f.processor.ProcessTransaction(context.Background(), f.record)
	require.NoError(s.T(), err)
	assert.False(s.T(), resolved)
}

func (s *ProcessorTestSuite) TestMalformedAnchorStringIsUnresolvable() {
	f := newBatchFixture(5)
	f.record.AnchorString = "definitely-not-an-anchor-string"

	resolved, err := f.processor.ProcessTransaction(context.Background(), f.record)
	require.NoError(s.T(), err)
	assert.False(s.T(), resolved)
}

func (s *ProcessorTestSuite) TestDeclaredCountTooLowIsUnresolvable() {
	f := newBatchFixture(3)

	resolved, err := f.processor.ProcessTransaction(context.Background(), f.record)
	require.NoError(s.T(), err)
	assert.False(s.T(), resolved)
	assert.Empty(s.T(), f.store.operations)
}

func (s *ProcessorTestSuite) TestCancelledContextIsFatal() {
	f := newBatchFixture(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.processor.ProcessTransaction(ctx, f.record)
	assert.Error(s.T(), err)
}
