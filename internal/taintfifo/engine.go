package taintfifo

import (
	"fmt"
	"time"
)

// EngineError reports an invariant violation detected while replaying a
// block. Go idiom replaces the original implementation's aborting asserts
// with an explicit, checked return value: the caller (the CLI driver) logs
// it and exits non-zero rather than the process panicking mid-replay.
type EngineError struct {
	Height int64
	Reason string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("taintfifo: block %d: %s", e.Height, e.Reason)
}

func engineErrorf(height int64, format string, args ...interface{}) *EngineError {
	return &EngineError{Height: height, Reason: fmt.Sprintf(format, args...)}
}

// ProgressEvent is a read-only snapshot handed to an optional observer after
// each block, for the live monitor and nothing else — the engine never
// blocks on, or mutates state based on, what an observer does with it.
type ProgressEvent struct {
	Height             int64
	UTXOCount          int
	Collisions         uint64
	BootstrapRemaining int
}

// Engine is the single-threaded, synchronous block processor. OnBlock must
// never be called concurrently or from more than one goroutine: per-block
// transient state (the coinbase queue, the miner-offset map, the per-tx
// taint buffer) lives on the stack of a single OnBlock call and is
// discarded on return, never stored on Engine itself.
type Engine struct {
	Colors     *ColorRegistry
	Bootstrap  *Bootstrap
	Ledger     *Ledger
	Collisions *CollisionLog

	MaxHeight   int64 // 0 means unbounded
	StartHeight int64
	EndHeight   int64

	taintCollisions uint64
	observer        func(ProgressEvent)
}

// NewEngine wires a fresh Engine around the given color registry, bootstrap
// set and collision log. maxHeight of 0 means replay every block delivered.
func NewEngine(colors *ColorRegistry, bootstrap *Bootstrap, collisions *CollisionLog, maxHeight int64) *Engine {
	return &Engine{
		Colors:     colors,
		Bootstrap:  bootstrap,
		Ledger:     NewLedger(),
		Collisions: collisions,
		MaxHeight:  maxHeight,
	}
}

// SetObserver installs fn to be called once after every successfully
// processed block. Pass nil to disable.
func (e *Engine) SetObserver(fn func(ProgressEvent)) { e.observer = fn }

// TaintCollisions returns the running collision count across the whole
// replay so far.
func (e *Engine) TaintCollisions() uint64 { return e.taintCollisions }

// Start records the height of the first block about to be processed.
func (e *Engine) Start(height int64) { e.StartHeight = height }

func formatTimestamp(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("20060102-150405")
}

// OnBlock replays one block: it registers coinbase outputs, then for every
// non-coinbase transaction injects any bootstrap taint for this txid, drains
// input taint, distributes the merged taint across outputs (including
// miner-fee slices), and finally removes spent inputs from the ledger. A
// settlement pass attributes any coinbase value never claimed by a fee.
//
// Returns a non-nil *EngineError if height is within range but an
// invariant is violated; never panics.
func (e *Engine) OnBlock(block Block, height int64) error {
	if e.MaxHeight > 0 && height >= e.MaxHeight {
		return nil
	}

	timestamp := formatTimestamp(block.Header.Timestamp)
	reattrib := NewReattributor()

	// Pass 1: register every coinbase output so it is payable against
	// fees from any transaction later in this block, regardless of order.
	for _, tx := range block.Txs {
		if !tx.IsCoinbase {
			continue
		}
		for i, out := range tx.Outputs {
			op := Outpoint{Txid: tx.Hash, Index: uint32(i)}
			e.Ledger.PutAddress(op, out.Address)
			reattrib.RegisterCoinbase(op, out)
		}
	}

	var blockInputs, blockOutputs, blockFees uint64

	for _, tx := range block.Txs {
		if tx.IsCoinbase {
			continue
		}
		txid := txidHex(tx.Hash)

		// Bootstrap injection: pre-seed this txid's own outputs with their
		// assigned taint at current_balance == 0. This does not bypass the
		// normal distribution loop below — it runs through it like any
		// other pre-existing ledger entry, so the tx's real inputs (if
		// any; typically clean, freshly-deposited value) are merged with
		// the bootstrap taint via the same Combine used for coinbase
		// offsets. The real inputs' taint is the left side, so under the
		// left-wins-unless-clean rule the bootstrap color fills every
		// position where the real inputs are clean.
		if assigned, ok := e.Bootstrap.Take(txid); ok {
			for i, out := range tx.Outputs {
				op := Outpoint{Txid: tx.Hash, Index: uint32(i)}
				if _, exists := e.Ledger.Get(op); exists {
					return engineErrorf(height, "bootstrap tx %s: output %s already has a ledger entry", txid, outpointDisplay(op))
				}
				extracted := Extract(assigned, out.Value)
				if extracted.Sum() != out.Value {
					return engineErrorf(height, "bootstrap tx %s: extracted %d, want %d", txid, extracted.Sum(), out.Value)
				}
				info := &AddressInfo{Timestamp: timestamp, CurrentBalance: 0}
				if extracted.Len() > 0 {
					info.Tainted = extracted
				}
				e.Ledger.PutAddress(op, out.Address)
				e.Ledger.PutInfo(op, info)
			}
		}

		// Drain inputs into a per-transaction taint buffer.
		txTaint := NewTaintQueue()
		var inputsSummed uint64
		for _, in := range tx.Inputs {
			info, ok := e.Ledger.Get(in.Outpoint)
			if !ok {
				return engineErrorf(height, "tx %s: input %s not found in ledger", txid, outpointDisplay(in.Outpoint))
			}
			inputsSummed += info.CurrentBalance
			if info.Tainted != nil {
				for !info.Tainted.Empty() {
					f, _ := info.Tainted.PopFront()
					txTaint.PushBack(f)
				}
			} else if info.CurrentBalance > 0 {
				txTaint.PushBack(TaintFragment{Color: CleanColor, Value: info.CurrentBalance})
			}
		}

		var outputsSummed uint64
		for _, out := range tx.Outputs {
			outputsSummed += out.Value
		}
		if inputsSummed < outputsSummed {
			return engineErrorf(height, "tx %s: inputs %d < outputs %d", txid, inputsSummed, outputsSummed)
		}
		fee := inputsSummed - outputsSummed
		blockFees += fee
		blockInputs += inputsSummed
		blockOutputs += outputsSummed

		inputTaintSum := NonCleanSum(txTaint)

		type distItem struct {
			Outpoint Outpoint
			Output   TxOutput
			Offset   uint64
		}
		dist := make([]distItem, 0, len(tx.Outputs))
		for i, out := range tx.Outputs {
			dist = append(dist, distItem{Outpoint: Outpoint{Txid: tx.Hash, Index: uint32(i)}, Output: out})
		}
		if fee > 0 {
			attributions, err := reattrib.AttributeFee(fee)
			if err != nil {
				return engineErrorf(height, "tx %s: %v", txid, err)
			}
			for _, a := range attributions {
				dist = append(dist, distItem{Outpoint: a.Outpoint, Output: a.Output, Offset: a.Offset})
			}
		}

		var outputTaintSum uint64
		for _, item := range dist {
			extracted := Extract(txTaint, item.Output.Value)
			if extracted.Sum() != item.Output.Value {
				return engineErrorf(height, "tx %s: extracted %d for %s, want %d", txid, extracted.Sum(), outpointDisplay(item.Outpoint), item.Output.Value)
			}

			existing, hasExisting := e.Ledger.Get(item.Outpoint)
			var priorBalance uint64
			if hasExisting {
				priorBalance = existing.CurrentBalance
				if priorBalance != item.Offset {
					return engineErrorf(height, "tx %s: %s ledger balance %d != expected offset %d", txid, outpointDisplay(item.Outpoint), priorBalance, item.Offset)
				}
				if existing.Tainted != nil {
					// A bootstrap-injected entry holds taint sized to this
					// output at a zero balance; any other prior entry's taint
					// covers exactly its balance.
					wantSum := priorBalance
					if priorBalance == 0 {
						wantSum = item.Output.Value
					}
					if existing.Tainted.Sum() != wantSum {
						return engineErrorf(height, "tx %s: %s tainted sum %d != expected %d", txid, outpointDisplay(item.Outpoint), existing.Tainted.Sum(), wantSum)
					}
					if item.Offset > 0 {
						extracted.PushFront(TaintFragment{Color: CleanColor, Value: item.Offset})
					}
					collisions, err := Combine(extracted, existing.Tainted, e.Collisions, txid)
					if err != nil {
						return engineErrorf(height, "tx %s: %v", txid, err)
					}
					e.taintCollisions += uint64(collisions)
				} else if priorBalance > 0 {
					extracted.PushFront(TaintFragment{Color: CleanColor, Value: priorBalance})
				}
			}

			Compact(extracted)
			outputTaintSum += NonCleanSum(extracted)

			info := &AddressInfo{Timestamp: timestamp, CurrentBalance: item.Output.Value + priorBalance}
			if extracted.Len() > 0 {
				info.Tainted = extracted
			}
			e.Ledger.PutAddress(item.Outpoint, item.Output.Address)
			e.Ledger.PutInfo(item.Outpoint, info)
		}

		if inputTaintSum > outputTaintSum {
			return engineErrorf(height, "tx %s: input taint %d exceeds output taint %d", txid, inputTaintSum, outputTaintSum)
		}
		if !txTaint.Empty() {
			return engineErrorf(height, "tx %s: %d taint fragments left undistributed", txid, txTaint.Len())
		}

		for _, in := range tx.Inputs {
			e.Ledger.Remove(in.Outpoint)
		}
	}

	if blockInputs < blockOutputs+blockFees || blockInputs-blockOutputs-blockFees != 0 {
		return engineErrorf(height, "block-level value conservation violated")
	}

	// Settlement pass: any coinbase output (or remainder of one) never
	// claimed by a fee becomes pure miner reward, clean unless it already
	// picked up taint from a partial fee attribution earlier in the block.
	for _, slot := range reattrib.Settle() {
		existing, hasExisting := e.Ledger.Get(slot.Outpoint)
		if hasExisting {
			if existing.Tainted != nil {
				if existing.Tainted.Sum() != existing.CurrentBalance {
					return engineErrorf(height, "settlement: %s tainted sum %d != balance %d", outpointDisplay(slot.Outpoint), existing.Tainted.Sum(), existing.CurrentBalance)
				}
				existing.Tainted.PushBack(TaintFragment{Color: CleanColor, Value: slot.Remaining})
				Compact(existing.Tainted)
				if existing.Tainted.Len() == 0 {
					existing.Tainted = nil
				}
			}
			existing.CurrentBalance += slot.Remaining
		} else {
			e.Ledger.PutInfo(slot.Outpoint, &AddressInfo{Timestamp: timestamp, CurrentBalance: slot.Remaining})
		}
	}

	if height > e.EndHeight {
		e.EndHeight = height
	}
	e.emitProgress(height)
	return nil
}

func (e *Engine) emitProgress(height int64) {
	if e.observer == nil {
		return
	}
	e.observer(ProgressEvent{
		Height:             height,
		UTXOCount:          e.Ledger.Len(),
		Collisions:         e.taintCollisions,
		BootstrapRemaining: e.Bootstrap.Len(),
	})
}
