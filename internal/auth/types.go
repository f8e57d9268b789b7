// Package auth implements spec §4.7: bearer-token authentication with a
// loopback bypass, checked against a single static HTTP_BEARER_TOKEN —
// there is no token store, no scopes, and no per-project ACL here, only
// "was this request allowed in."
package auth

// AuthContext describes how the current request was admitted. It carries
// no scope or project restriction because this system's auth model is
// binary: a request is admitted or it isn't (spec §4.7; HTTP_RBAC_ENABLED
// is reserved for a future scoped model and is never consulted here).
type AuthContext struct {
	ViaLoopback bool
	ViaBearer   bool
}

// Authenticated reports whether the request was admitted by any method.
func (a *AuthContext) Authenticated() bool {
	return a != nil && (a.ViaLoopback || a.ViaBearer)
}
