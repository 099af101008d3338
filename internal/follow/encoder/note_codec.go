package encoder

import (
	"bytes"
	"fmt"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

const (
	noteValueCommitmentSize = 32
	noteCommitmentSize      = 32
	noteEphemeralKeySize    = 32
	noteCiphertextSize      = 152
	noteOutCiphertextSize   = 80

	// ShieldedNoteSize is the length of a serialized encrypted note.
	ShieldedNoteSize = noteValueCommitmentSize + noteCommitmentSize + noteEphemeralKeySize +
		noteCiphertextSize + noteOutCiphertextSize
)

// ShieldedNoteCodec reads encrypted notes laid out as value commitment, note
// commitment, ephemeral public key and the two ciphertexts.
type ShieldedNoteCodec struct{}

// Commitment returns the note commitment.
func (ShieldedNoteCodec) Commitment(serialized []byte) (model.Hash, error) {
	if len(serialized) != ShieldedNoteSize {
		return model.Hash{}, fmt.Errorf("note: want %d bytes, got %d: %w", ShieldedNoteSize, len(serialized), ErrMalformedBlockData)
	}
	start := noteValueCommitmentSize
	return model.HashFromBytes(serialized[start : start+noteCommitmentSize])
}

// Check is a best effort plausibility test: the commitment and the ephemeral
// key must not be all zeroes. It proves nothing about the note.
func (ShieldedNoteCodec) Check(serialized []byte) bool {
	if len(serialized) != ShieldedNoteSize {
		return false
	}
	zero := make([]byte, noteCommitmentSize)
	commitment := serialized[noteValueCommitmentSize : noteValueCommitmentSize+noteCommitmentSize]
	keyStart := noteValueCommitmentSize + noteCommitmentSize
	ephemeralKey := serialized[keyStart : keyStart+noteEphemeralKeySize]
	return !bytes.Equal(commitment, zero) && !bytes.Equal(ephemeralKey, zero)
}
