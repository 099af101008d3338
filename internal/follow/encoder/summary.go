package encoder

import "github.com/goodnatureofminers/chainfollow/internal/follow/model"

// Element is one frame of the follow stream.
type Element struct {
	Type  model.TransitionType `json:"type"`
	Head  HeadSummary          `json:"head"`
	Block BlockSummary         `json:"block"`
}

// HeadSummary reports the canonical tip at emission time.
type HeadSummary struct {
	Sequence uint64 `json:"sequence"`
}

// BlockSummary is the transport projection of a block. Amounts and work are
// decimal strings so no consumer parses them as floats.
type BlockSummary struct {
	Hash         string               `json:"hash"`
	Sequence     uint64               `json:"sequence"`
	Previous     string               `json:"previous"`
	Graffiti     string               `json:"graffiti"`
	Difficulty   string               `json:"difficulty"`
	Size         uint64               `json:"size"`
	Timestamp    int64                `json:"timestamp"`
	Work         string               `json:"work"`
	Main         bool                 `json:"main"`
	NoteSize     *uint64              `json:"noteSize"`
	Transactions []TransactionSummary `json:"transactions"`
}

type TransactionSummary struct {
	Hash       string         `json:"hash"`
	Size       int            `json:"size"`
	Fee        string         `json:"fee"`
	Expiration uint32         `json:"expiration"`
	Notes      []NoteSummary  `json:"notes"`
	Spends     []SpendSummary `json:"spends"`
	Mints      []MintSummary  `json:"mints"`
	Burns      []BurnSummary  `json:"burns"`
	Serialized string         `json:"serialized,omitempty"`
}

type NoteSummary struct {
	Commitment string `json:"commitment"`
}

type SpendSummary struct {
	Nullifier  string `json:"nullifier"`
	Commitment string `json:"commitment"`
	Size       uint32 `json:"size"`
}

type MintSummary struct {
	ID                  string  `json:"id"`
	Metadata            string  `json:"metadata"`
	Name                string  `json:"name"`
	Creator             string  `json:"creator"`
	Value               string  `json:"value"`
	TransferOwnershipTo *string `json:"transferOwnershipTo,omitempty"`
}

type BurnSummary struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Diagnostics tallies the optional note check for a single Encode call.
type Diagnostics struct {
	NotesChecked int
	NotesInvalid int
}

// Add accumulates other into d.
func (d *Diagnostics) Add(other Diagnostics) {
	d.NotesChecked += other.NotesChecked
	d.NotesInvalid += other.NotesInvalid
}
