// Package clientconfig reads and writes the external MCP client's JSON
// configuration file — the `mcpServers` document a coding-agent harness
// loads at startup — implementing `setup run`/`setup status` (spec §6).
// This is not the core's own config (see internal/config); it is a file
// format owned by a third-party collaborator that the core must edit
// surgically: touch only the `mcp-agent-mail` entry, leave every sibling
// server untouched, and back up before writing.
package clientconfig

import "strings"

// StripJSONComments removes // and /* */ comments from a JSONC document so
// it can be parsed with encoding/json. Ground: internal/config/jsonc.go,
// kept verbatim — client config files in the wild (VS Code-style MCP
// configs in particular) commonly carry comments that plain
// encoding/json.Unmarshal would reject.
func StripJSONComments(data []byte) []byte {
	input := string(data)
	var result strings.Builder
	result.Grow(len(input))

	i := 0
	inString := false
	for i < len(input) {
		if input[i] == '"' && (i == 0 || input[i-1] != '\\') {
			inString = !inString
			result.WriteByte(input[i])
			i++
			continue
		}

		if !inString {
			if i+1 < len(input) && input[i] == '/' && input[i+1] == '/' {
				for i < len(input) && input[i] != '\n' {
					i++
				}
				continue
			}
			if i+1 < len(input) && input[i] == '/' && input[i+1] == '*' {
				i += 2
				for i+1 < len(input) {
					if input[i] == '*' && input[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}

		result.WriteByte(input[i])
		i++
	}

	return []byte(result.String())
}
