package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPrune_KeepsNewestEntries(t *testing.T) {
	root := t.TempDir()
	names := []string{"run-1", "run-2", "run-3", "run-4"}
	for i, name := range names {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "out.log"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		// run-4 is newest
		mt := time.Now().Add(-time.Duration(len(names)-i) * time.Hour)
		if err := os.Chtimes(dir, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := Prune(root, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if stats.Removed != 2 || stats.DirsTouched != 1 {
		t.Errorf("stats = %+v, want 2 removed in 1 dir", stats)
	}
	for _, name := range []string{"run-3", "run-4"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s should survive: %v", name, err)
		}
	}
	for _, name := range []string{"run-1", "run-2"} {
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Errorf("%s should be pruned", name)
		}
	}
}

func TestPrune_MissingRootIsNoOp(t *testing.T) {
	stats, err := Prune(filepath.Join(t.TempDir(), "missing"), 3)
	if err != nil {
		t.Fatalf("Prune on missing root: %v", err)
	}
	if stats.Removed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLedger_RecordRunsAndTrim(t *testing.T) {
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer l.Close()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := Run{Source: "docs", At: base.Add(time.Duration(i) * time.Minute), Files: 1, Rows: i}
		if err := l.Record(run); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := l.Runs("docs")
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 5 || runs[0].Rows != 0 || runs[4].Rows != 4 {
		t.Fatalf("runs out of order or missing: %+v", runs)
	}

	removed, err := l.Trim("docs", 2)
	if err != nil || removed != 3 {
		t.Fatalf("Trim = (%d, %v), want (3, nil)", removed, err)
	}
	runs, _ = l.Runs("docs")
	if len(runs) != 2 || runs[0].Rows != 3 {
		t.Errorf("newest runs should survive trim: %+v", runs)
	}

	sources, err := l.Sources()
	if err != nil || len(sources) != 1 || sources[0] != "docs" {
		t.Errorf("Sources = (%v, %v)", sources, err)
	}
}

func TestLedger_UnknownSource(t *testing.T) {
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer l.Close()

	runs, err := l.Runs("nope")
	if err != nil || runs != nil {
		t.Errorf("Runs on unknown source = (%v, %v)", runs, err)
	}
	removed, err := l.Trim("nope", 1)
	if err != nil || removed != 0 {
		t.Errorf("Trim on unknown source = (%d, %v)", removed, err)
	}
}
