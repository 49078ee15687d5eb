// Package chainsource adapts a live Bitcoin Core node into the block stream
// taintfifo.Engine.OnBlock expects, the same way the teacher's Bitcoin RPC
// client wrapper connects and verifies before serving requests.
package chainsource

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/rawblock/taintfifo/internal/taintfifo"
)

// Config holds the RPC endpoint and credentials for a Bitcoin Core node.
type Config struct {
	Host string
	User string
	Pass string
}

// Source fetches blocks by height from a Bitcoin Core node and adapts them
// into taintfifo.Block. One Source talks to one node; it holds no replay
// state of its own.
type Source struct {
	rpc *rpcclient.Client
}

// NewSource connects to cfg.Host and verifies the connection with
// getblockcount before returning, the same connect-then-verify sequence
// the teacher's RPC client used.
func NewSource(cfg Config) (*Source, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	log.Printf("[chainsource] connecting to Bitcoin RPC at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainsource: connect: %w", err)
	}

	height, err := client.GetBlockCount()
	if err != nil {
		client.Shutdown()
		return nil, fmt.Errorf("chainsource: verify connection: %w", err)
	}
	log.Printf("[chainsource] connected, node tip height %d", height)

	return &Source{rpc: client}, nil
}

// Close shuts down the underlying RPC client.
func (s *Source) Close() { s.rpc.Shutdown() }

// TipHeight returns the node's current best block height.
func (s *Source) TipHeight() (int64, error) {
	h, err := s.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("chainsource: getblockcount: %w", err)
	}
	return h, nil
}

// BlockAt fetches the block at height and every transaction inside it,
// adapting them into a taintfifo.Block. Transaction hashes and previous
// outpoints are kept in the same internal byte orientation chainhash.Hash
// stores them in, matching what types.go's txidHex expects to reverse for
// display.
func (s *Source) BlockAt(height int64) (taintfifo.Block, error) {
	hash, err := s.rpc.GetBlockHash(height)
	if err != nil {
		return taintfifo.Block{}, fmt.Errorf("chainsource: getblockhash(%d): %w", height, err)
	}

	verbose, err := s.rpc.GetBlockVerbose(hash)
	if err != nil {
		return taintfifo.Block{}, fmt.Errorf("chainsource: getblock(%s): %w", hash, err)
	}

	block := taintfifo.Block{
		Header: taintfifo.BlockHeader{Timestamp: verbose.Time},
		Txs:    make([]taintfifo.Tx, 0, len(verbose.Tx)),
	}

	for _, txid := range verbose.Tx {
		txHash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			return taintfifo.Block{}, fmt.Errorf("chainsource: bad txid %q at height %d: %w", txid, height, err)
		}

		raw, err := s.rpc.GetRawTransactionVerbose(txHash)
		if err != nil {
			return taintfifo.Block{}, fmt.Errorf("chainsource: getrawtransaction(%s): %w", txid, err)
		}

		tx, err := adaptTx(*txHash, raw)
		if err != nil {
			return taintfifo.Block{}, fmt.Errorf("chainsource: tx %s at height %d: %w", txid, height, err)
		}
		block.Txs = append(block.Txs, tx)
	}

	return block, nil
}

func adaptTx(hash chainhash.Hash, raw *btcjson.TxRawResult) (taintfifo.Tx, error) {
	tx := taintfifo.Tx{
		Hash:       [32]byte(hash),
		IsCoinbase: len(raw.Vin) > 0 && raw.Vin[0].Coinbase != "",
		Inputs:     make([]taintfifo.TxInput, 0, len(raw.Vin)),
		Outputs:    make([]taintfifo.TxOutput, 0, len(raw.Vout)),
	}

	for _, vin := range raw.Vin {
		if vin.Txid == "" {
			// Coinbase input: no prior outpoint to drain.
			continue
		}
		prevHash, err := chainhash.NewHashFromStr(vin.Txid)
		if err != nil {
			return taintfifo.Tx{}, fmt.Errorf("input txid %q: %w", vin.Txid, err)
		}
		tx.Inputs = append(tx.Inputs, taintfifo.TxInput{
			Outpoint: taintfifo.Outpoint{Txid: [32]byte(*prevHash), Index: vin.Vout},
		})
	}

	for _, vout := range raw.Vout {
		address := ""
		if len(vout.ScriptPubKey.Addresses) > 0 {
			address = vout.ScriptPubKey.Addresses[0]
		}
		amt, err := btcutil.NewAmount(vout.Value)
		if err != nil {
			return taintfifo.Tx{}, fmt.Errorf("output value %v: %w", vout.Value, err)
		}
		script, err := hex.DecodeString(vout.ScriptPubKey.Hex)
		if err != nil {
			return taintfifo.Tx{}, fmt.Errorf("scriptPubKey hex %q: %w", vout.ScriptPubKey.Hex, err)
		}
		tx.Outputs = append(tx.Outputs, taintfifo.TxOutput{
			Value:   uint64(amt),
			Script:  script,
			Address: address,
		})
	}

	return tx, nil
}
