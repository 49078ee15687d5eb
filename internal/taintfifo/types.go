// Package taintfifo implements FIFO taint propagation over a UTXO-based
// blockchain: given a bootstrap set of transactions whose outputs carry
// pre-labeled colored taint, it replays blocks in order and traces how
// those colored satoshis flow through later transactions under strict
// first-in/first-out consumption.
package taintfifo

import (
	"encoding/hex"
	"strconv"
)

// ColorID is a compact numeric label for a taint provenance class.
// ID 0 is reserved for "Clean" (untainted) value.
type ColorID uint16

// CleanColor is the reserved sentinel for untainted value.
const CleanColor ColorID = 0

// TaintFragment is an indivisible (color, value) unit inside a TaintQueue.
// A fragment with Value == 0 is never stored.
type TaintFragment struct {
	Color ColorID
	Value uint64
}

// Outpoint identifies a transaction output: the 32-byte transaction hash
// (internal, little-endian storage orientation) and the output index.
type Outpoint struct {
	Txid  [32]byte
	Index uint32
}

// AddressInfo is the per-UTXO ledger record. Tainted == nil means the
// output is entirely clean, the canonical representation for clean UTXOs.
// When Tainted != nil, the sum of its fragments equals CurrentBalance.
type AddressInfo struct {
	Timestamp      string
	CurrentBalance uint64
	Tainted        *TaintQueue
}

// TxInput references the outpoint an input spends.
type TxInput struct {
	Outpoint Outpoint
}

// TxOutput is a single transaction output.
type TxOutput struct {
	Value   uint64
	Script  []byte
	Address string
}

// Tx is a transaction as delivered by the chain source.
type Tx struct {
	Hash       [32]byte
	IsCoinbase bool
	Inputs     []TxInput
	Outputs    []TxOutput
}

// BlockHeader carries the block metadata the engine needs.
type BlockHeader struct {
	Timestamp int64 // unix seconds
}

// Block is a single block as delivered by the chain source, transactions
// in block order.
type Block struct {
	Header BlockHeader
	Txs    []Tx
}

// txidHex renders an internal little-endian txid as the big-endian hex
// display string used by bootstrap files and CSV exports (byte-swapped
// from internal storage, matching Bitcoin's conventional txid display).
func txidHex(h [32]byte) string {
	rev := make([]byte, 32)
	for i := 0; i < 32; i++ {
		rev[i] = h[31-i]
	}
	return hex.EncodeToString(rev)
}

// outpointDisplay renders an outpoint as "txid_hex:index" for CSV export
// and error messages.
func outpointDisplay(op Outpoint) string {
	return txidHex(op.Txid) + ":" + strconv.FormatUint(uint64(op.Index), 10)
}
