package models

import "time"

// Store is one merchant storefront registered on a platform.
type Store struct {
	ID               string
	StoreCode        string // stable user-facing code, unique across platforms
	Name             string
	Platform         Platform
	PlatformStoreID  string // the platform's own store identifier
	CredentialRef    string // name of the credential entry; the engine never reads secrets
	AutoReplyEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
