// Package mail implements spec §4.3: message send/ack/inbox/reply/search
// over the Store, plus thread summarization. Ground: internal/mcp's
// handler-calls-into-domain-package shape, generalized onto a message board
// instead of an exec/session transcript.
package mail

import (
	"strings"

	"github.com/dicklesworthstone/agentmail/internal/store"
)

// ParseSearchQuery tokenizes a raw search_messages query string into the
// three clause kinds search supports (spec §4.3): bare words AND together,
// a trailing '*' marks a prefix token, and a double-quoted run is a literal
// phrase. Tokens are lowercased; the underlying engine (FTS5 or the LIKE
// fallback) treats matching case-insensitively regardless.
func ParseSearchQuery(raw string) store.SearchQuery {
	var q store.SearchQuery
	runes := []rune(raw)
	i, n := 0, len(runes)
	for i < n {
		for i < n && isSpace(runes[i]) {
			i++
		}
		if i >= n {
			break
		}
		if runes[i] == '"' {
			j := i + 1
			for j < n && runes[j] != '"' {
				j++
			}
			phrase := strings.ToLower(string(runes[i+1 : min(j, n)]))
			if phrase != "" {
				q.Phrases = append(q.Phrases, phrase)
			}
			if j < n {
				j++
			}
			i = j
			continue
		}
		j := i
		for j < n && !isSpace(runes[j]) {
			j++
		}
		tok := string(runes[i:j])
		i = j
		if tok == "" {
			continue
		}
		if strings.HasSuffix(tok, "*") && len(tok) > 1 {
			q.PrefixTokens = append(q.PrefixTokens, strings.ToLower(strings.TrimSuffix(tok, "*")))
			continue
		}
		q.AndTokens = append(q.AndTokens, strings.ToLower(tok))
	}
	return q
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
