package mcp

import (
	"context"
	"encoding/base64"

	"github.com/dicklesworthstone/agentmail/internal/content"
	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// registerBlobTools wires the content-addressed attachment blob store
// (spec §3 ContentBlob) onto r, so a message's attachments array can carry
// digests of content actually reachable over MCP rather than an opaque
// interface nothing can populate.
func registerBlobTools(r *Registry, db *store.DB, blobs *content.Store) {
	Register(r, ToolDef{
		Name:        "store_content_blob",
		Description: "Stores a base64-encoded blob and returns its sha256 digest for use as a message attachment.",
	}, func(ctx context.Context, p struct {
		DataBase64 string `json:"data_base64"`
	}) (any, error) {
		data, err := base64.StdEncoding.DecodeString(p.DataBase64)
		if err != nil {
			return nil, mcperr.Invalid("data_base64 is not valid base64: %v", err)
		}
		digest, err := blobs.Put(ctx, data)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sha256": digest, "size_bytes": len(data)}, nil
	})

	Register(r, ToolDef{
		Name:        "fetch_content_blob",
		Description: "Fetches a previously stored blob by its sha256 digest, base64-encoded.",
	}, func(ctx context.Context, p struct {
		Sha256 string `json:"sha256"`
	}) (any, error) {
		data, err := blobs.Get(p.Sha256)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sha256": p.Sha256, "data_base64": base64.StdEncoding.EncodeToString(data)}, nil
	})
}
