package clientconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/config"
)

// entryName is the key setup run owns inside mcpServers; every other key
// in the document is a sibling entry preserved verbatim.
const entryName = "mcp-agent-mail"

// ServerEntry is one `mcpServers` value, covering both forms spec §6
// describes. Fields use omitempty so the HTTP and stdio forms don't leak
// each other's zero values into the written JSON.
type ServerEntry struct {
	Type    string            `json:"type,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Document is the client config file's root shape. Unknown top-level keys
// are preserved via Extra so a setup run never discards fields the client
// itself added.
type Document struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	Extra      map[string]json.RawMessage `json:"-"`
}

// HTTPEntry builds the `type:"http"` form of the mcp-agent-mail entry from
// a running server's config.
func HTTPEntry(cfg *config.Config) ServerEntry {
	return ServerEntry{
		Type: "http",
		URL:  fmt.Sprintf("http://%s:%d/mcp/", cfg.HTTPHost, cfg.HTTPPort),
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.BearerToken,
		},
	}
}

// StdioEntry builds the `command`/`args`/`env` stdio form, invoking the
// given executable path in serve-stdio mode.
func StdioEntry(binPath string, cfg *config.Config) ServerEntry {
	return ServerEntry{
		Command: binPath,
		Args:    []string{"serve-stdio"},
		Env: map[string]string{
			"HTTP_BEARER_TOKEN": cfg.BearerToken,
			"STORAGE_ROOT":      cfg.StorageRoot,
			"DATABASE_URL":      cfg.DatabaseURL,
		},
	}
}

// Load reads and parses a client config file. A missing file yields an
// empty Document rather than an error, since `setup run` against a
// not-yet-existing config file creates it from scratch.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{MCPServers: map[string]ServerEntry{}}, nil
		}
		return nil, fmt.Errorf("clientconfig: reading %s: %w", path, err)
	}

	stripped := StripJSONComments(data)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return nil, fmt.Errorf("clientconfig: parsing %s: %w", path, err)
	}

	doc := &Document{MCPServers: map[string]ServerEntry{}, Extra: map[string]json.RawMessage{}}
	for k, v := range raw {
		if k == "mcpServers" {
			if err := json.Unmarshal(v, &doc.MCPServers); err != nil {
				return nil, fmt.Errorf("clientconfig: parsing mcpServers in %s: %w", path, err)
			}
			continue
		}
		doc.Extra[k] = v
	}
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]ServerEntry{}
	}
	return doc, nil
}

// Status reports whether the mcp-agent-mail entry is present and, if so,
// whether it matches what setup run would write — field-by-field equal
// JSON, per spec §6's idempotence requirement.
type Status struct {
	Present  bool
	UpToDate bool
	Current  *ServerEntry
}

// CheckStatus implements `setup status`: does the document at path already
// carry an up-to-date mcp-agent-mail entry matching want.
func CheckStatus(path string, want ServerEntry) (*Status, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	existing, ok := doc.MCPServers[entryName]
	if !ok {
		return &Status{Present: false}, nil
	}
	return &Status{Present: true, UpToDate: reflect.DeepEqual(existing, want), Current: &existing}, nil
}

// Run implements `setup run`: merges want into path's mcpServers map under
// entryName, leaving every sibling entry and every other top-level field
// untouched, and returns the backup file path written (empty if the entry
// was already up to date and no write was needed).
func Run(path string, want ServerEntry, nowUnix int64) (backupPath string, err error) {
	doc, err := Load(path)
	if err != nil {
		return "", err
	}

	if existing, ok := doc.MCPServers[entryName]; ok && reflect.DeepEqual(existing, want) {
		return "", nil
	}

	if data, statErr := os.ReadFile(path); statErr == nil {
		backupPath = fmt.Sprintf("%s.bak%d", path, nowUnix)
		if err := os.WriteFile(backupPath, data, 0o644); err != nil {
			return "", fmt.Errorf("clientconfig: writing backup %s: %w", backupPath, err)
		}
	}

	doc.MCPServers[entryName] = want

	out := make(map[string]json.RawMessage, len(doc.Extra)+1)
	for k, v := range doc.Extra {
		out[k] = v
	}
	serversJSON, err := json.MarshalIndent(doc.MCPServers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("clientconfig: encoding mcpServers: %w", err)
	}
	out["mcpServers"] = serversJSON

	final, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("clientconfig: encoding document: %w", err)
	}
	final = append(final, '\n')

	if err := os.WriteFile(path, final, 0o644); err != nil {
		return "", fmt.Errorf("clientconfig: writing %s: %w", path, err)
	}
	return backupPath, nil
}

// NowTimestamp returns the timestamp setup run stamps onto backup
// filenames (`<name>.bak<timestamp>`, spec §6).
func NowTimestamp() int64 {
	return time.Now().UnixMicro()
}
