package assistant

import "strings"

// AnonymousIdentity is the owner used when nobody is signed in.
const AnonymousIdentity = "anonymous"

// OwnerIdentity derives the session owner from the signed-in user id, falling
// back to a per-visitor anonymous identity and finally the fixed sentinel.
func OwnerIdentity(userID, visitorID string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	if v := strings.TrimSpace(visitorID); v != "" {
		return AnonymousIdentity + ":" + v
	}
	return AnonymousIdentity
}

// UserIDFromOwner returns the user id embedded in an owner identity, or "" for anonymous owners.
func UserIDFromOwner(owner string) string {
	if id, ok := strings.CutPrefix(owner, "user:"); ok {
		return id
	}
	return ""
}

// SessionKey is the storage key for an owner's session.
func SessionKey(owner string) string {
	return "assistant:session:" + owner
}
