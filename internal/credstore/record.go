package credstore

import (
	"time"
)

// CredentialType identifies the kind of stored credential.
type CredentialType string

// Credential types.
const (
	TypePassword    CredentialType = "password"
	TypeAPIKey      CredentialType = "api_key"
	TypeBearerToken CredentialType = "bearer_token"
	TypeCertificate CredentialType = "certificate"
	TypeOAuthClient CredentialType = "oauth_client"
	TypeSigningKey  CredentialType = "signing_key"
)

// Status represents the lifecycle status of a stored credential.
type Status string

// Credential statuses. Transitions are forward-only: active may move
// to rotated, expired, or compromised; none of those return to active
// except through Rotate, which writes a new active version.
const (
	StatusActive      Status = "active"
	StatusRotated     Status = "rotated"
	StatusExpired     Status = "expired"
	StatusCompromised Status = "compromised"
)

// Record is the persisted form of a credential. The payload exists
// only as ciphertext; Salt and Nonce are the per-write key-derivation
// salt and AES-GCM nonce, and Checksum is a SHA-256 digest of the
// plaintext used for tamper detection after decryption.
type Record struct {
	ID           string         `json:"credential_id"`
	Type         CredentialType `json:"type"`
	ServiceID    string         `json:"service_identifier"`
	Ciphertext   []byte         `json:"ciphertext"`
	Salt         []byte         `json:"salt"`
	Nonce        []byte         `json:"iv"`
	Checksum     string         `json:"checksum"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	LastAccessed *time.Time     `json:"last_accessed,omitempty"`
	AccessCount  int64          `json:"access_count"`
	RotationTag  string         `json:"rotation_policy,omitempty"`
	BackupCount  int            `json:"backup_count"`
	Tags         []string       `json:"tags,omitempty"`
}

// Metadata carries caller-supplied attributes for a credential.
type Metadata struct {
	ExpiresAt   *time.Time
	RotationTag string
	Tags        []string
}

// Info is the metadata-only view of a record, safe for listings. It
// never includes ciphertext or key material.
type Info struct {
	ID           string         `json:"credential_id"`
	Type         CredentialType `json:"type"`
	ServiceID    string         `json:"service_identifier"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	LastAccessed *time.Time     `json:"last_accessed,omitempty"`
	AccessCount  int64          `json:"access_count"`
	RotationTag  string         `json:"rotation_policy,omitempty"`
	BackupCount  int            `json:"backup_count"`
	Tags         []string       `json:"tags,omitempty"`
}

// info returns the metadata-only view of the record.
func (r *Record) info() *Info {
	return &Info{
		ID:           r.ID,
		Type:         r.Type,
		ServiceID:    r.ServiceID,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ExpiresAt:    r.ExpiresAt,
		LastAccessed: r.LastAccessed,
		AccessCount:  r.AccessCount,
		RotationTag:  r.RotationTag,
		BackupCount:  r.BackupCount,
		Tags:         append([]string(nil), r.Tags...),
	}
}

// Filter selects credentials in List. Zero-value fields match all.
type Filter struct {
	Type      CredentialType
	ServiceID string
	Status    Status
	Tag       string
}

// matches reports whether the record satisfies the filter.
func (f *Filter) matches(r *Record) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.ServiceID != "" && r.ServiceID != f.ServiceID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range r.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
