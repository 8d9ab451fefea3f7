// Package core implements the version 1.0 transaction processor. It
// resolves an anchor record's off-chain batch files through the CAS and
// persists the carried operations grouped by DID suffix.
package core

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/anchornet/observer/src/utils/anchor"
	"github.com/anchornet/observer/src/utils/cas"
	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/logger"
	"github.com/anchornet/observer/src/utils/model"
	"github.com/anchornet/observer/src/utils/monitor"

	"github.com/sirupsen/logrus"
)

type CasReader interface {
	Read(ctx context.Context, uri string, maxSize int64) ([]byte, error)
}

type OperationStore interface {
	InsertOrReplace(ctx context.Context, batch []model.Operation) error
}

type Processor struct {
	log    *logrus.Entry
	config *config.Config

	cas        CasReader
	operations OperationStore
	monitor    *monitor.Monitor
}

func NewProcessor(config *config.Config) (self *Processor) {
	self = new(Processor)
	self.log = logger.NewSublogger("core-processor")
	self.config = config
	return
}

func (self *Processor) WithCas(cas CasReader) *Processor {
	self.cas = cas
	return self
}

func (self *Processor) WithOperationStore(operations OperationStore) *Processor {
	self.operations = operations
	return self
}

func (self *Processor) WithMonitor(monitor *monitor.Monitor) *Processor {
	self.monitor = monitor
	return self
}

// ProcessTransaction downloads the batch files behind the record's anchor
// string and persists the operations. resolved=false means the batch
// cannot be processed right now (missing or malformed content), which is
// a retryable condition owned by the unresolvable store. A returned error
// is fatal for the pipeline.
func (self *Processor) ProcessTransaction(ctx context.Context, record eth.AnchorRecord) (resolved bool, err error) {
	log := self.log.WithField("transactionNumber", record.TransactionNumber)

	numberOfOperations, coreIndexUri, err := anchor.Deserialize(record.AnchorString)
	if err != nil {
		log.WithError(err).WithField("anchorString", record.AnchorString).
			Error("Malformed anchor string")
		return false, nil
	}

	coreIndex, ok, err := readJson[CoreIndexFile](self, ctx, log, coreIndexUri, self.config.Cas.MaxCoreIndexFileSize)
	if !ok {
		return false, err
	}

	var provisionalIndex *ProvisionalIndexFile
	if coreIndex.ProvisionalIndexFileUri != "" {
		var file ProvisionalIndexFile
		file, ok, err = readJson[ProvisionalIndexFile](self, ctx, log, coreIndex.ProvisionalIndexFileUri, self.config.Cas.MaxProvisionalIndexFileSize)
		if !ok {
			return false, err
		}
		provisionalIndex = &file
	}

	// Proof files only need to be retrievable, their content stays opaque
	// to the observer
	var coreProof, provisionalProof *ProofFile
	if coreIndex.CoreProofFileUri != "" {
		var file ProofFile
		file, ok, err = readJson[ProofFile](self, ctx, log, coreIndex.CoreProofFileUri, self.config.Cas.MaxProofFileSize)
		if !ok {
			return false, err
		}
		coreProof = &file
	}
	if provisionalIndex != nil && provisionalIndex.ProvisionalProofFileUri != "" {
		var file ProofFile
		file, ok, err = readJson[ProofFile](self, ctx, log, provisionalIndex.ProvisionalProofFileUri, self.config.Cas.MaxProofFileSize)
		if !ok {
			return false, err
		}
		provisionalProof = &file
	}

	var deltas []json.RawMessage
	if provisionalIndex != nil {
		for _, chunk := range provisionalIndex.Chunks {
			var file ChunkFile
			file, ok, err = readJson[ChunkFile](self, ctx, log, chunk.ChunkFileUri, self.config.Cas.MaxChunkFileSize)
			if !ok {
				return false, err
			}
			deltas = append(deltas, file.Deltas...)
		}
	}

	batch, ok := self.assembleOperations(log, record, &coreIndex, provisionalIndex, coreProof, provisionalProof, deltas)
	if !ok {
		return false, nil
	}

	if uint64(len(batch)) > numberOfOperations {
		log.WithField("declared", numberOfOperations).
			WithField("actual", len(batch)).
			Error("Batch carries more operations than the anchor string declares")
		return false, nil
	}

	err = self.operations.InsertOrReplace(ctx, batch)
	if err != nil {
		return false, err
	}

	if self.monitor != nil {
		self.monitor.GetReport().State.OperationsSaved.Add(uint64(len(batch)))
	}

	log.WithField("operations", len(batch)).Debug("Transaction processed")
	return true, nil
}

// Flattens the index files into one operation batch. Deltas out of the
// chunk file are matched positionally: create, then recover, then update.
func (self *Processor) assembleOperations(
	log *logrus.Entry,
	record eth.AnchorRecord,
	coreIndex *CoreIndexFile,
	provisionalIndex *ProvisionalIndexFile,
	coreProof *ProofFile,
	provisionalProof *ProofFile,
	deltas []json.RawMessage,
) (batch []model.Operation, ok bool) {

	var creates []CreateReference
	var recovers, deactivates, updates []SignedReference
	if coreIndex.Operations != nil {
		creates = coreIndex.Operations.Create
		recovers = coreIndex.Operations.Recover
		deactivates = coreIndex.Operations.Deactivate
	}
	if provisionalIndex != nil && provisionalIndex.Operations != nil {
		updates = provisionalIndex.Operations.Update
	}

	expectedDeltas := len(creates) + len(recovers) + len(updates)
	if len(deltas) > 0 && len(deltas) != expectedDeltas {
		log.WithField("expected", expectedDeltas).
			WithField("actual", len(deltas)).
			Error("Chunk file delta count does not match the index files")
		return nil, false
	}

	deltaAt := func(i int) sql.NullString {
		if i >= len(deltas) {
			return sql.NullString{}
		}
		return sql.NullString{String: string(deltas[i]), Valid: true}
	}
	signedAt := func(payloads []SignedPayload, i int) sql.NullString {
		if payloads == nil || i >= len(payloads) {
			return sql.NullString{}
		}
		return sql.NullString{String: string(payloads[i].SignedData), Valid: true}
	}

	var coreProofOps, provisionalProofOps *ProofOperations
	if coreProof != nil {
		coreProofOps = &coreProof.Operations
	}
	if provisionalProof != nil {
		provisionalProofOps = &provisionalProof.Operations
	}

	index := 0
	push := func(op model.Operation) {
		op.TransactionNumber = record.TransactionNumber
		op.TransactionTime = record.TransactionTime
		op.OperationIndex = index
		index++
		batch = append(batch, op)
	}

	for i, create := range creates {
		if len(create.SuffixData) == 0 {
			log.Error("Create operation without suffix data")
			return nil, false
		}
		push(model.Operation{
			DidSuffix:  didSuffix(create.SuffixData),
			Type:       model.OperationTypeCreate,
			SuffixData: sql.NullString{String: string(create.SuffixData), Valid: true},
			Delta:      deltaAt(i),
		})
	}

	for i, reference := range recovers {
		if reference.DidSuffix == "" {
			log.Error("Recover operation without DID suffix")
			return nil, false
		}
		var signed sql.NullString
		if coreProofOps != nil {
			signed = signedAt(coreProofOps.Recover, i)
		}
		push(model.Operation{
			DidSuffix:  reference.DidSuffix,
			Type:       model.OperationTypeRecover,
			SignedData: signed,
			Delta:      deltaAt(len(creates) + i),
		})
	}

	for i, deactivate := range deactivates {
		if deactivate.DidSuffix == "" {
			log.Error("Deactivate operation without DID suffix")
			return nil, false
		}
		var signed sql.NullString
		if coreProofOps != nil {
			signed = signedAt(coreProofOps.Deactivate, i)
		}
		push(model.Operation{
			DidSuffix:  deactivate.DidSuffix,
			Type:       model.OperationTypeDeactivate,
			SignedData: signed,
		})
	}

	for i, update := range updates {
		if update.DidSuffix == "" {
			log.Error("Update operation without DID suffix")
			return nil, false
		}
		var signed sql.NullString
		if provisionalProofOps != nil {
			signed = signedAt(provisionalProofOps.Update, i)
		}
		push(model.Operation{
			DidSuffix:  update.DidSuffix,
			Type:       model.OperationTypeUpdate,
			SignedData: signed,
			Delta:      deltaAt(len(creates) + len(recovers) + i),
		})
	}

	return batch, true
}

// The DID suffix of a create operation is the multihash of its suffix
// data, encoded the same way as CAS URIs.
func didSuffix(suffixData json.RawMessage) string {
	return anchor.UriFromDigest(sha256.Sum256(suffixData))
}

// Downloads and decodes one JSON batch file. ok=false with a nil error
// means a logical failure, ok=false with an error means a fatal one.
func readJson[T any](self *Processor, ctx context.Context, log *logrus.Entry, uri string, maxSize int64) (out T, ok bool, err error) {
	content, err := self.cas.Read(ctx, uri, maxSize)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if errors.Is(err, cas.ErrNotFound) || errors.Is(err, cas.ErrMaxSizeExceeded) {
			log.WithError(err).WithField("uri", uri).Info("Batch file not retrievable")
			err = nil
			return
		}
		log.WithError(err).WithField("uri", uri).Warn("CAS read failed")
		err = nil
		return
	}

	err = json.Unmarshal(content, &out)
	if err != nil {
		log.WithError(err).WithField("uri", uri).Error("Malformed batch file")
		err = nil
		return
	}

	ok = true
	return
}
