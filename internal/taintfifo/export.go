package taintfifo

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	mapperFileName  = "taint_mapper.csv"
	overlapFileName = "taint_overlap.csv"
	utxoFileName    = "taint_utxo.csv"
	addressFileName = "address_info.csv"
	timingFileName  = "taint_timing_information.csv"
)

// Exporter owns the dump-folder output files for one run, writing to
// "<name>.tmp" and renaming to "<name>" only once every file has been
// written successfully — the same create-now, finalize-on-completion
// discipline as the original's rename_tmp_files.
type Exporter struct {
	dumpFolder string

	mapperFile *os.File
	mapper     *csv.Writer

	overlapFile *os.File
	overlap     *csv.Writer

	utxoFile *os.File
	utxo     *csv.Writer

	addressFile *os.File
	address     *csv.Writer
}

// NewExporter creates dumpFolder if needed and opens the four ".tmp" output
// files. Overlap() returns a CollisionLog writing directly to the overlap
// file, so collisions stream out during replay instead of being buffered.
func NewExporter(dumpFolder string) (*Exporter, error) {
	if err := os.MkdirAll(dumpFolder, 0o755); err != nil {
		return nil, fmt.Errorf("taintfifo: create dump folder %s: %w", dumpFolder, err)
	}

	ex := &Exporter{dumpFolder: dumpFolder}
	var err error
	if ex.mapperFile, ex.mapper, err = createTmpCSV(dumpFolder, mapperFileName); err != nil {
		return nil, err
	}
	if ex.overlapFile, ex.overlap, err = createTmpCSV(dumpFolder, overlapFileName); err != nil {
		return nil, err
	}
	if ex.utxoFile, ex.utxo, err = createTmpCSV(dumpFolder, utxoFileName); err != nil {
		return nil, err
	}
	if ex.addressFile, ex.address, err = createTmpCSV(dumpFolder, addressFileName); err != nil {
		return nil, err
	}
	return ex, nil
}

func createTmpCSV(folder, name string) (*os.File, *csv.Writer, error) {
	path := filepath.Join(folder, name+".tmp")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("taintfifo: create %s: %w", path, err)
	}
	return f, csv.NewWriter(f), nil
}

// Overlap returns a CollisionLog that writes straight to taint_overlap.csv.
func (ex *Exporter) Overlap() *CollisionLog { return NewCollisionLog(ex.overlap) }

// WriteColorMapping writes the full color registry, in ID order. Called
// once, right after the bootstrap file is loaded — no new colors are ever
// minted during block replay.
func (ex *Exporter) WriteColorMapping(entries []ColorEntry) error {
	for _, e := range entries {
		row := []string{e.Tag, strconv.FormatUint(uint64(e.ID), 10)}
		if err := ex.mapper.Write(row); err != nil {
			return fmt.Errorf("taintfifo: write %s: %w", mapperFileName, err)
		}
	}
	ex.mapper.Flush()
	return ex.mapper.Error()
}

// DumpLedger writes the final UTXO set (taint_utxo.csv) and address info
// (address_info.csv) tables. Called once, after the last block has been
// processed — the ledger only has a single final state worth exporting.
func (ex *Exporter) DumpLedger(ledger *Ledger) error {
	var writeErr error
	ledger.EachUTXO(func(op Outpoint, address string) {
		if writeErr != nil {
			return
		}
		writeErr = ex.utxo.Write([]string{txidHex(op.Txid), strconv.FormatUint(uint64(op.Index), 10), address})
	})
	if writeErr != nil {
		return fmt.Errorf("taintfifo: write %s: %w", utxoFileName, writeErr)
	}
	ex.utxo.Flush()
	if err := ex.utxo.Error(); err != nil {
		return fmt.Errorf("taintfifo: write %s: %w", utxoFileName, err)
	}

	ledger.EachInfo(func(op Outpoint, info *AddressInfo) {
		if writeErr != nil {
			return
		}
		row := []string{
			outpointDisplay(op),
			info.Timestamp,
			strconv.FormatUint(info.CurrentBalance, 10),
		}
		if info.Tainted != nil {
			for _, f := range info.Tainted.Fragments() {
				row = append(row, strconv.FormatUint(uint64(f.Color), 10)+" "+strconv.FormatUint(f.Value, 10))
			}
		}
		writeErr = ex.address.Write(row)
	})
	if writeErr != nil {
		return fmt.Errorf("taintfifo: write %s: %w", addressFileName, writeErr)
	}
	ex.address.Flush()
	if err := ex.address.Error(); err != nil {
		return fmt.Errorf("taintfifo: write %s: %w", addressFileName, err)
	}
	return nil
}

// Finalize flushes and closes every output file, writes the reserved
// (possibly empty) timing file, and atomically renames every ".tmp" file
// into place. Call exactly once, after DumpLedger.
func (ex *Exporter) Finalize() error {
	ex.overlap.Flush()
	if err := ex.overlap.Error(); err != nil {
		return fmt.Errorf("taintfifo: write %s: %w", overlapFileName, err)
	}

	for _, f := range []*os.File{ex.mapperFile, ex.overlapFile, ex.utxoFile, ex.addressFile} {
		if err := f.Close(); err != nil {
			return fmt.Errorf("taintfifo: close %s: %w", f.Name(), err)
		}
	}

	timingPath := filepath.Join(ex.dumpFolder, timingFileName+".tmp")
	if err := os.WriteFile(timingPath, nil, 0o644); err != nil {
		return fmt.Errorf("taintfifo: create %s: %w", timingPath, err)
	}

	for _, name := range []string{mapperFileName, overlapFileName, utxoFileName, addressFileName, timingFileName} {
		oldPath := filepath.Join(ex.dumpFolder, name+".tmp")
		newPath := filepath.Join(ex.dumpFolder, name)
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("taintfifo: rename %s: %w", oldPath, err)
		}
	}
	return nil
}
