// Command taintfifo replays a Bitcoin-style block range through a FIFO
// taint-propagation engine and dumps the resulting per-UTXO taint queues
// and collision log to a dump folder.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/rawblock/taintfifo/internal/chainsource"
	"github.com/rawblock/taintfifo/internal/forensicsdb"
	"github.com/rawblock/taintfifo/internal/monitor"
	"github.com/rawblock/taintfifo/internal/taintfifo"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "taintFIFO" {
		log.Fatalf("usage: %s taintFIFO <dump-folder> --address-file PATH [flags]", os.Args[0])
	}

	fs := flag.NewFlagSet("taintFIFO", flag.ExitOnError)
	addressFile := fs.String("address-file", "", "bootstrap taint file (required)")
	maxHeight := fs.Int64("max-height", 0, "stop before this block height (0 = unbounded)")
	fs.Int64Var(maxHeight, "m", 0, "shorthand for --max-height")
	rpcHost := fs.String("rpc-host", "", "Bitcoin RPC host:port")
	rpcUser := fs.String("rpc-user", "", "Bitcoin RPC username")
	rpcPass := fs.String("rpc-pass", "", "Bitcoin RPC password")
	monitorAddr := fs.String("monitor-addr", "", "if set, serve live progress on this address")
	databaseURL := fs.String("database-url", "", "if set, mirror collisions and final UTXO state to this Postgres URL")

	// flag stops at the first non-flag argument, so a leading <dump-folder>
	// is taken off before parsing; it may also follow the flags.
	args := os.Args[2:]
	dumpFolder := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		dumpFolder, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if dumpFolder == "" {
		if fs.NArg() < 1 {
			log.Fatalf("FATAL: missing required positional argument <dump-folder>")
		}
		dumpFolder = fs.Arg(0)
	}

	if *addressFile == "" {
		log.Fatalf("FATAL: --address-file is required")
	}
	rpcHostVal := *rpcHost
	if rpcHostVal == "" {
		rpcHostVal = getEnvOrDefault("BTC_RPC_HOST", "localhost:8332")
	}
	rpcUserVal := flagOrRequiredEnv(*rpcUser, "BTC_RPC_USER")
	rpcPassVal := flagOrRequiredEnv(*rpcPass, "BTC_RPC_PASS")

	log.Println("Starting taintfifo replay engine...")

	colors := taintfifo.NewColorRegistry()
	bootstrap, err := taintfifo.LoadBootstrap(*addressFile, colors)
	if err != nil {
		log.Fatalf("FATAL: failed to load bootstrap file %s: %v", *addressFile, err)
	}
	log.Printf("Loaded %d bootstrap transactions, %d colors", bootstrap.Len(), colors.Len())

	exporter, err := taintfifo.NewExporter(dumpFolder)
	if err != nil {
		log.Fatalf("FATAL: failed to open dump folder %s: %v", dumpFolder, err)
	}
	if err := exporter.WriteColorMapping(colors.Entries()); err != nil {
		log.Fatalf("FATAL: failed to write color mapping: %v", err)
	}

	overlap := exporter.Overlap()
	engine := taintfifo.NewEngine(colors, bootstrap, overlap, *maxHeight)

	var mon *monitor.Server
	if *monitorAddr != "" {
		mon = monitor.NewServer(*maxHeight)
		mon.Run()
		go func() {
			log.Printf("Live monitor listening on %s", *monitorAddr)
			if err := mon.Router().Run(*monitorAddr); err != nil {
				log.Printf("Warning: monitor server stopped: %v", err)
			}
		}()
		engine.SetObserver(mon.Observe)
	}

	var sink *forensicsdb.Store
	ctx := context.Background()
	if *databaseURL != "" {
		sink, err = forensicsdb.Connect(ctx, *databaseURL)
		if err != nil {
			log.Fatalf("FATAL: failed to connect to Postgres: %v", err)
		}
		defer sink.Close()
		if err := sink.InitSchema(ctx); err != nil {
			log.Fatalf("FATAL: failed to init forensics schema: %v", err)
		}
		overlap.SetForward(func(r taintfifo.CollisionRecord) {
			if err := sink.RecordCollision(ctx, r); err != nil {
				log.Printf("Warning: failed to persist collision row: %v", err)
			}
		})
	}

	source, err := chainsource.NewSource(chainsource.Config{Host: rpcHostVal, User: rpcUserVal, Pass: rpcPassVal})
	if err != nil {
		log.Fatalf("FATAL: failed to connect to Bitcoin RPC: %v", err)
	}
	defer source.Close()

	tip, err := source.TipHeight()
	if err != nil {
		log.Fatalf("FATAL: failed to read chain tip: %v", err)
	}
	endHeight := tip
	if *maxHeight > 0 && *maxHeight < endHeight {
		endHeight = *maxHeight
	}

	engine.Start(0)
	for height := int64(0); height <= endHeight; height++ {
		block, err := source.BlockAt(height)
		if err != nil {
			log.Fatalf("FATAL: failed to fetch block %d: %v", height, err)
		}
		if err := engine.OnBlock(block, height); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		if height%1000 == 0 {
			log.Printf("Processed block %d/%d, %d collisions so far", height, endHeight, engine.TaintCollisions())
		}
	}

	if err := exporter.DumpLedger(engine.Ledger); err != nil {
		log.Fatalf("FATAL: failed to dump ledger: %v", err)
	}
	if sink != nil {
		if err := sink.SyncLedger(ctx, engine.Ledger); err != nil {
			log.Printf("Warning: failed to sync final ledger to Postgres: %v", err)
		}
	}
	if err := exporter.Finalize(); err != nil {
		log.Fatalf("FATAL: failed to finalize output files: %v", err)
	}

	log.Printf("Replay complete: height %d, %d collisions, %d live UTXOs",
		engine.EndHeight, engine.TaintCollisions(), engine.Ledger.Len())
}

// requireEnv reads a required environment variable and exits if it is not
// set, matching the teacher's cmd/engine/main.go convention.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a fallback default.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// flagOrRequiredEnv prefers an explicit flag value, falling back to a
// required environment variable (fatal if neither is set).
func flagOrRequiredEnv(flagVal, envKey string) string {
	if flagVal != "" {
		return flagVal
	}
	return requireEnv(envKey)
}
