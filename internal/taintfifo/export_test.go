package taintfifo

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

// taint_mapper.csv must be tag-first (tag,color_id), matching the original
// Rust's format!("{},{}", tag, mapto) — not id-first.
func TestWriteColorMappingTagFirst(t *testing.T) {
	dir := t.TempDir()
	ex, err := NewExporter(dir)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	colors := NewColorRegistry()
	colors.IDFor("red")
	colors.IDFor("blue")

	if err := ex.WriteColorMapping(colors.Entries()); err != nil {
		t.Fatalf("WriteColorMapping: %v", err)
	}
	if err := ex.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, mapperFileName))
	want := [][]string{
		{"Clean", "0"},
		{"red", "1"},
		{"blue", "2"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if len(rows[i]) != 2 || rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Fatalf("row %d = %v, want %v (tag first, then color_id)", i, rows[i], want[i])
		}
	}
}

// taint_utxo.csv must be three separate fields — txid_hex,index,address —
// not a colon-joined "txid:index" pair collapsed into two fields.
func TestDumpLedgerUTXORowHasThreeFields(t *testing.T) {
	dir := t.TempDir()
	ex, err := NewExporter(dir)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	ledger := NewLedger()
	op := Outpoint{Txid: hashOf(0x11), Index: 3}
	ledger.PutAddress(op, "bc1qexample")
	ledger.PutInfo(op, &AddressInfo{Timestamp: "19700101-000000", CurrentBalance: 100})

	if err := ex.DumpLedger(ledger); err != nil {
		t.Fatalf("DumpLedger: %v", err)
	}
	if err := ex.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, utxoFileName))
	if len(rows) != 1 {
		t.Fatalf("rows = %v, want 1 row", rows)
	}
	row := rows[0]
	if len(row) != 3 {
		t.Fatalf("row = %v, want 3 fields (txid_hex,index,address)", row)
	}
	if row[0] != txidHex(op.Txid) {
		t.Fatalf("row[0] = %q, want txid_hex %q", row[0], txidHex(op.Txid))
	}
	if row[1] != "3" {
		t.Fatalf("row[1] = %q, want index \"3\"", row[1])
	}
	if row[2] != "bc1qexample" {
		t.Fatalf("row[2] = %q, want address", row[2])
	}
}
