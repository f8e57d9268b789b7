package clientconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsEmptyDocument(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.MCPServers) != 0 {
		t.Errorf("expected empty mcpServers, got %v", doc.MCPServers)
	}
}

func TestLoad_StripsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// a comment
		"mcpServers": {
			"other": {"command": "foo"} /* inline */
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := doc.MCPServers["other"]; !ok {
		t.Fatalf("expected sibling entry 'other' to survive parse, got %v", doc.MCPServers)
	}
}

func TestRun_PreservesSiblingEntriesAndWritesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	initial := `{
		"mcpServers": {
			"other-server": {"command": "other", "args": ["run"]}
		},
		"unrelatedTopLevelField": true
	}`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	want := ServerEntry{Type: "http", URL: "http://127.0.0.1:8085/mcp/", Headers: map[string]string{"Authorization": "Bearer tok"}}
	backup, err := Run(path, want, 1234567890)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backup == "" {
		t.Fatal("expected a backup file path for a pre-existing config")
	}
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("backup file not written: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("re-Load: %v", err)
	}
	if _, ok := doc.MCPServers["other-server"]; !ok {
		t.Fatal("sibling entry 'other-server' was dropped")
	}
	got, ok := doc.MCPServers[entryName]
	if !ok {
		t.Fatal("mcp-agent-mail entry missing after Run")
	}
	if got.URL != want.URL {
		t.Errorf("URL = %q, want %q", got.URL, want.URL)
	}

	var raw map[string]json.RawMessage
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("re-parsing written file: %v", err)
	}
	if _, ok := raw["unrelatedTopLevelField"]; !ok {
		t.Error("unrelatedTopLevelField was dropped from the document")
	}
}

func TestRun_IdempotentOnSecondCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := ServerEntry{Type: "http", URL: "http://127.0.0.1:8085/mcp/"}

	if _, err := Run(path, want, 1); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	backup, err := Run(path, want, 2)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if backup != "" {
		t.Errorf("expected no backup on idempotent re-run, got %q", backup)
	}
}

func TestCheckStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := ServerEntry{Type: "http", URL: "http://127.0.0.1:8085/mcp/"}

	st, err := CheckStatus(path, want)
	if err != nil {
		t.Fatalf("CheckStatus on missing file: %v", err)
	}
	if st.Present {
		t.Error("expected Present=false before setup run")
	}

	if _, err := Run(path, want, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st, err = CheckStatus(path, want)
	if err != nil {
		t.Fatalf("CheckStatus after Run: %v", err)
	}
	if !st.Present || !st.UpToDate {
		t.Errorf("expected Present=true, UpToDate=true, got %+v", st)
	}

	other := ServerEntry{Type: "http", URL: "http://127.0.0.1:9999/mcp/"}
	st, err = CheckStatus(path, other)
	if err != nil {
		t.Fatalf("CheckStatus with different target: %v", err)
	}
	if !st.Present || st.UpToDate {
		t.Errorf("expected Present=true, UpToDate=false against a changed target, got %+v", st)
	}
}
