package encoder

import (
	"fmt"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"golang.org/x/crypto/blake2s"
)

const (
	assetCreatorSize  = 32
	assetNameSize     = 32
	assetMetadataSize = 96
	assetNonceSize    = 1

	// AssetSize is the length of a serialized asset.
	AssetSize = assetCreatorSize + assetNameSize + assetMetadataSize + assetNonceSize

	// OwnerSize is the length of a public address that can own an asset.
	OwnerSize = 32
)

// Asset is a parsed mint asset.
type Asset struct {
	ID       model.Hash
	Creator  []byte
	Name     []byte
	Metadata []byte
	Nonce    byte
}

// ParseAsset splits a serialized asset into creator, name, metadata and
// nonce. The identifier is the BLAKE2s-256 digest of the serialized form.
func ParseAsset(b []byte) (Asset, error) {
	if len(b) != AssetSize {
		return Asset{}, fmt.Errorf("asset: want %d bytes, got %d: %w", AssetSize, len(b), ErrMalformedBlockData)
	}

	offset := 0
	next := func(n int) []byte {
		field := b[offset : offset+n]
		offset += n
		return field
	}

	return Asset{
		ID:       model.Hash(blake2s.Sum256(b)),
		Creator:  next(assetCreatorSize),
		Name:     next(assetNameSize),
		Metadata: next(assetMetadataSize),
		Nonce:    next(assetNonceSize)[0],
	}, nil
}

// SerializeAsset is the inverse of ParseAsset. name and metadata are zero
// padded and must fit their fields.
func SerializeAsset(creator, name, metadata []byte, nonce byte) ([]byte, error) {
	if len(creator) != assetCreatorSize {
		return nil, fmt.Errorf("asset creator: want %d bytes, got %d", assetCreatorSize, len(creator))
	}
	if len(name) > assetNameSize {
		return nil, fmt.Errorf("asset name longer than %d bytes", assetNameSize)
	}
	if len(metadata) > assetMetadataSize {
		return nil, fmt.Errorf("asset metadata longer than %d bytes", assetMetadataSize)
	}

	out := make([]byte, AssetSize)
	copy(out, creator)
	copy(out[assetCreatorSize:], name)
	copy(out[assetCreatorSize+assetNameSize:], metadata)
	out[AssetSize-1] = nonce
	return out, nil
}
