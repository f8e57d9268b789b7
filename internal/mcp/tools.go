package mcp

import (
	"github.com/dicklesworthstone/agentmail/internal/content"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// registerAllTools registers every domain tool (spec §4.2-§4.4) against a
// fresh Registry, split across handlers_identity.go, handlers_mail.go,
// handlers_reservations.go, and handlers_content.go by feature area.
func registerAllTools(r *Registry, db *store.DB, blobs *content.Store) {
	registerIdentityTools(r, db)
	registerMailTools(r, db)
	registerReservationTools(r, db)
	registerBlobTools(r, db, blobs)
}
