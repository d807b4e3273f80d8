package google

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/export"
)

func TestSnapshotRows(t *testing.T) {
	snap := export.ProjectSnapshot{
		Slug:        "familia",
		ProjectID:   "proj-1",
		ProjectName: "Projeto",
		Version:     3,
		GeneratedAt: time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC),
		Settlement: core.Settlement{
			Total: 120,
			Share: 60,
			Transfers: []core.Transfer{
				{From: "Lucas", To: "Ana", Amount: 60},
			},
		},
	}

	rows := snapshotRows(snap)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want summary + 1 transfer", len(rows))
	}
	if rows[0][4] != "summary" || rows[0][5] != 120.0 {
		t.Errorf("summary row = %v", rows[0])
	}
	if rows[1][4] != "transfer" || rows[1][5] != "Lucas" || rows[1][6] != "Ana" {
		t.Errorf("transfer row = %v", rows[1])
	}
	if rows[0][0] != "2025-03-15 10:30:00" {
		t.Errorf("timestamp = %v", rows[0][0])
	}
}

func TestReadCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{"access_token":"x"}`), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		inline string
		file   string
		want   string
	}{
		{"inline wins", `{"a":1}`, path, `{"a":1}`},
		{"file fallback", "", path, `{"access_token":"x"}`},
		{"neither", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readCredential(tt.inline, tt.file)
			if err != nil {
				t.Fatalf("readCredential() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("readCredential() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := readCredential("", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should error")
	}
}
