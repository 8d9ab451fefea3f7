package core

import (
	"encoding/json"
)

// Wire shapes of the content-addressed batch files. Payloads stay opaque,
// the observer only needs enough structure to walk the references and
// group operations.

type CoreIndexFile struct {
	ProvisionalIndexFileUri string          `json:"provisionalIndexFileUri,omitempty"`
	CoreProofFileUri        string          `json:"coreProofFileUri,omitempty"`
	WriterLockId            string          `json:"writerLockId,omitempty"`
	Operations              *CoreOperations `json:"operations,omitempty"`
}

type CoreOperations struct {
	Create     []CreateReference `json:"create,omitempty"`
	Recover    []SignedReference `json:"recover,omitempty"`
	Deactivate []SignedReference `json:"deactivate,omitempty"`
}

type CreateReference struct {
	SuffixData json.RawMessage `json:"suffixData"`
}

type SignedReference struct {
	DidSuffix   string `json:"didSuffix"`
	RevealValue string `json:"revealValue"`
}

type ProvisionalIndexFile struct {
	ProvisionalProofFileUri string                 `json:"provisionalProofFileUri,omitempty"`
	Chunks                  []ChunkReference       `json:"chunks"`
	Operations              *ProvisionalOperations `json:"operations,omitempty"`
}

type ChunkReference struct {
	ChunkFileUri string `json:"chunkFileUri"`
}

type ProvisionalOperations struct {
	Update []SignedReference `json:"update,omitempty"`
}

type ChunkFile struct {
	Deltas []json.RawMessage `json:"deltas"`
}

// Proof files carry the signed payloads for recover, deactivate and
// update operations, in the same order as their index file references.
type ProofFile struct {
	Operations ProofOperations `json:"operations"`
}

type ProofOperations struct {
	Recover    []SignedPayload `json:"recover,omitempty"`
	Deactivate []SignedPayload `json:"deactivate,omitempty"`
	Update     []SignedPayload `json:"update,omitempty"`
}

type SignedPayload struct {
	SignedData json.RawMessage `json:"signedData"`
}
