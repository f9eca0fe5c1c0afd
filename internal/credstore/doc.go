// Package credstore provides encrypted persistence for long-lived
// credentials (passwords, API keys, certificates, signing secrets).
//
// Each credential is encrypted with AES-256-GCM under a key derived
// from a master key via PBKDF2 with a fresh random salt, and persisted
// as one JSON record file. An independent SHA-256 checksum over the
// plaintext detects tampering on retrieval. Plaintext never reaches
// durable storage.
//
// The store enforces a per-credential lockout window on failed
// retrievals, writes backup copies before overwrites when enabled,
// and supports secure deletion by overwriting the record file with
// random data before unlinking.
package credstore
