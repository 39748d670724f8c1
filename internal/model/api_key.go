package model

import "time"

type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyPrefix string     `json:"key_prefix"`
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Scope granting access to backup artifacts.
const ScopeBackupsAdmin = "backups:admin"

// HasScope reports whether scopes grant s; "*" grants everything.
func HasScope(scopes []string, s string) bool {
	for _, sc := range scopes {
		if sc == "*" || sc == s {
			return true
		}
	}
	return false
}
