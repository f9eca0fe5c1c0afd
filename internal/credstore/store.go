package credstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vyrodovalexey/authcore/internal/audit"
	"github.com/vyrodovalexey/authcore/internal/masterkey"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

const recordExt = ".json"

// Config holds credential store configuration.
type Config struct {
	// Dir is the directory holding credential record files.
	Dir string `yaml:"dir"`

	// MaxAccessAttempts is the number of failed retrievals tolerated
	// within LockoutWindow before the credential locks out. Zero
	// disables lockout.
	MaxAccessAttempts int `yaml:"maxAccessAttempts"`

	// LockoutWindow is the sliding window for failed retrievals.
	LockoutWindow time.Duration `yaml:"lockoutWindow"`

	// BackupsEnabled enables backup copies before overwrites.
	BackupsEnabled bool `yaml:"backupsEnabled"`

	// MaxBackups bounds the number of backup files kept per credential.
	MaxBackups int `yaml:"maxBackups"`

	// SecureDeletePasses is the number of random-overwrite passes
	// performed by secure deletion.
	SecureDeletePasses int `yaml:"secureDeletePasses"`

	// KDFIterations is the PBKDF2 iteration count.
	KDFIterations int `yaml:"kdfIterations"`
}

// DefaultConfig returns the default credential store configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:                "credentials",
		MaxAccessAttempts:  5,
		LockoutWindow:      15 * time.Minute,
		BackupsEnabled:     true,
		MaxBackups:         3,
		SecureDeletePasses: 3,
		KDFIterations:      defaultKDFIterations,
	}
}

// Store is the secure credential store.
type Store struct {
	config   *Config
	crypt    *cryptor
	lockouts *lockoutTracker
	logger   observability.Logger
	auditor  audit.Logger
	metrics  *Metrics

	mu     sync.RWMutex
	index  map[string]*Record
	closed bool
}

// StoreOption is a functional option for the store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(auditor audit.Logger) StoreOption {
	return func(s *Store) {
		s.auditor = auditor
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// NewStore creates a credential store rooted at config.Dir, loading
// any existing record files into the in-memory index. The master key
// is fetched once from the given source.
func NewStore(ctx context.Context, config *Config, keySource masterkey.Source, opts ...StoreOption) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("credential store directory is required")
	}
	if keySource == nil {
		return nil, fmt.Errorf("master key source is required")
	}

	key, err := keySource.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	s := &Store{
		config:   config,
		crypt:    newCryptor(key, config.KDFIterations),
		lockouts: newLockoutTracker(config.MaxAccessAttempts, config.LockoutWindow),
		logger:   observability.NopLogger(),
		auditor:  audit.NewNoopLogger(),
		index:    make(map[string]*Record),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = NewMetricsWithRegisterer("authcore", nil)
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadIndex scans the storage directory for record files.
func (s *Store) loadIndex() error {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read credential directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.Contains(name, ".bak.") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.config.Dir, name)) //nolint:gosec // dir from config is trusted
		if err != nil {
			s.logger.Warn("failed to read credential record",
				observability.String("file", name),
				observability.Error(err),
			)
			continue
		}

		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn("failed to parse credential record",
				observability.String("file", name),
				observability.Error(err),
			)
			continue
		}

		s.index[record.ID] = &record
	}

	s.logger.Info("credential index loaded", observability.Int("count", len(s.index)))
	return nil
}

// Store encrypts and persists a new credential. It fails with
// ErrCredentialExists when the id is already present.
func (s *Store) Store(ctx context.Context, id string, ctype CredentialType, serviceID string, payload []byte, meta *Metadata) error {
	start := time.Now()
	err := s.store(ctx, id, ctype, serviceID, payload, meta)
	s.finish(ctx, audit.OpCredentialStore, id, start, err)
	return err
}

func (s *Store) store(ctx context.Context, id string, ctype CredentialType, serviceID string, payload []byte, meta *Metadata) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrCredentialExists, id)
	}

	ciphertext, salt, nonce, err := s.crypt.encrypt(payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := &Record{
		ID:         id,
		Type:       ctype,
		ServiceID:  serviceID,
		Ciphertext: ciphertext,
		Salt:       salt,
		Nonce:      nonce,
		Checksum:   checksum(payload),
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	applyMetadata(record, meta)

	if err := s.persist(record); err != nil {
		return err
	}

	s.index[id] = record
	return nil
}

// Retrieve decrypts and returns the credential payload. With decrypt
// set to false only access metadata is updated and no payload is
// returned. Lockout is enforced before any decryption attempt.
func (s *Store) Retrieve(ctx context.Context, id string, decrypt bool) ([]byte, error) {
	start := time.Now()
	payload, err := s.retrieve(ctx, id, decrypt)
	s.finish(ctx, audit.OpCredentialRetrieve, id, start, err)
	return payload, err
}

func (s *Store) retrieve(ctx context.Context, id string, decrypt bool) ([]byte, error) {
	if err := s.check(ctx, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	record, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}

	now := time.Now().UTC()
	if until := s.lockouts.lockedUntil(id, now); !until.IsZero() {
		s.metrics.RecordLockout()
		s.auditor.Log(ctx, audit.NewEvent(audit.OpLockout, audit.EntityCredential, id, false).
			WithReason("too many failed access attempts"))
		return nil, NewLockoutError(id, until)
	}

	// Access metadata updates regardless of whether decryption was
	// requested; persistence of the bump is best-effort.
	record.AccessCount++
	record.LastAccessed = &now
	if err := s.persist(record); err != nil {
		s.logger.Warn("failed to persist access metadata",
			observability.String("credential_id", id),
			observability.Error(err),
		)
	}

	if !decrypt {
		return nil, nil
	}

	payload, err := s.crypt.decrypt(record.Ciphertext, record.Salt, record.Nonce)
	if err != nil {
		return nil, s.integrityFailure(ctx, record, now, "authenticated decryption failed")
	}

	if !checksumMatches(record.Checksum, checksum(payload)) {
		return nil, s.integrityFailure(ctx, record, now, "checksum mismatch")
	}

	s.lockouts.reset(id)
	return payload, nil
}

// integrityFailure marks the record compromised, records the failed
// attempt for lockout accounting, and emits the security audit event.
// Integrity failures are never silently recovered.
func (s *Store) integrityFailure(ctx context.Context, record *Record, now time.Time, reason string) error {
	s.lockouts.recordFailure(record.ID, now)
	record.Status = StatusCompromised
	if err := s.persist(record); err != nil {
		s.logger.Error("failed to persist compromised status",
			observability.String("credential_id", record.ID),
			observability.Error(err),
		)
	}
	s.auditor.Log(ctx, audit.NewEvent(audit.OpIntegrityFailure, audit.EntityCredential, record.ID, false).
		WithReason(reason))
	return NewIntegrityError(record.ID)
}

// Update re-encrypts the credential with a fresh salt and nonce,
// backing up the prior version when backups are enabled.
func (s *Store) Update(ctx context.Context, id string, newPayload []byte, meta *Metadata) error {
	start := time.Now()
	err := s.update(ctx, id, newPayload, meta, StatusActive)
	s.finish(ctx, audit.OpCredentialUpdate, id, start, err)
	return err
}

func (s *Store) update(ctx context.Context, id string, newPayload []byte, meta *Metadata, status Status) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}
	if len(newPayload) == 0 {
		return ErrEmptyPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	record, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}

	if s.config.BackupsEnabled {
		if err := s.backup(record); err != nil {
			return err
		}
	}

	ciphertext, salt, nonce, err := s.crypt.encrypt(newPayload)
	if err != nil {
		return err
	}

	record.Ciphertext = ciphertext
	record.Salt = salt
	record.Nonce = nonce
	record.Checksum = checksum(newPayload)
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	applyMetadata(record, meta)

	if err := s.persist(record); err != nil {
		return err
	}

	s.lockouts.reset(id)
	return nil
}

// Rotate marks the current version rotated, backs it up, then stores
// the new payload with status reset to active.
func (s *Store) Rotate(ctx context.Context, id string, newPayload []byte) error {
	start := time.Now()
	err := s.rotate(ctx, id, newPayload)
	s.finish(ctx, audit.OpCredentialRotate, id, start, err)
	return err
}

func (s *Store) rotate(ctx context.Context, id string, newPayload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	record, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}
	record.Status = StatusRotated
	if err := s.persist(record); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.update(ctx, id, newPayload, nil, StatusActive)
}

// Delete removes the credential. With secureDelete the record file
// (and any backups) is overwritten with random data before unlinking
// to defend against forensic recovery.
func (s *Store) Delete(ctx context.Context, id string, secureDelete bool) error {
	start := time.Now()
	err := s.delete(ctx, id, secureDelete)
	s.finish(ctx, audit.OpCredentialDelete, id, start, err)
	return err
}

func (s *Store) delete(ctx context.Context, id string, secureDelete bool) error {
	if err := s.check(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	record, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}

	paths := []string{s.recordPath(id)}
	for n := 1; n <= record.BackupCount; n++ {
		paths = append(paths, s.backupPath(id, n))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if secureDelete {
			if err := overwriteFile(path, s.config.SecureDeletePasses); err != nil {
				return err
			}
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove credential file: %w", err)
		}
	}

	delete(s.index, id)
	s.lockouts.reset(id)
	return nil
}

// List returns metadata-only views of credentials matching the filter.
func (s *Store) List(filter *Filter) []*Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]*Info, 0, len(s.index))
	for _, record := range s.index {
		if filter.matches(record) {
			infos = append(infos, record.info())
		}
	}
	return infos
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// check validates the context and credential id.
func (s *Store) check(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid credential id: %q", id)
	}
	return nil
}

// finish records metrics and the audit trail entry for an operation.
// Audit writes are best-effort and never affect the result.
func (s *Store) finish(ctx context.Context, op audit.Operation, id string, start time.Time, err error) {
	outcome := "success"
	event := audit.NewEvent(op, audit.EntityCredential, id, err == nil).
		WithDuration(time.Since(start))
	if err != nil {
		outcome = "failure"
		event.WithReason(err.Error())
	}
	s.metrics.RecordOperation(op, outcome, time.Since(start))
	s.auditor.Log(ctx, event)
}

// recordPath returns the record file path for a credential id.
func (s *Store) recordPath(id string) string {
	return filepath.Join(s.config.Dir, id+recordExt)
}

// backupPath returns the nth backup file path for a credential id.
func (s *Store) backupPath(id string, n int) string {
	return filepath.Join(s.config.Dir, fmt.Sprintf("%s.bak.%d", id, n))
}

// persist writes the record atomically: full write to a temp file,
// sync, then rename. A failed write never leaves a partial record.
func (s *Store) persist(record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal credential record: %w", err)
	}

	path := s.recordPath(record.ID)
	tmp, err := os.CreateTemp(s.config.Dir, "."+record.ID+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp record file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write credential record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync credential record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close credential record: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename credential record: %w", err)
	}

	return nil
}

// backup copies the current record file before an overwrite. Backups
// rotate within MaxBackups slots.
func (s *Store) backup(record *Record) error {
	src := s.recordPath(record.ID)
	data, err := os.ReadFile(src) //nolint:gosec // path built from validated id
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read record for backup: %w", err)
	}

	slot := record.BackupCount + 1
	if s.config.MaxBackups > 0 && slot > s.config.MaxBackups {
		slot = s.config.MaxBackups
		// Shift older backups down, dropping the oldest.
		for n := 1; n < s.config.MaxBackups; n++ {
			_ = os.Rename(s.backupPath(record.ID, n+1), s.backupPath(record.ID, n))
		}
	}

	if err := os.WriteFile(s.backupPath(record.ID, slot), data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential backup: %w", err)
	}

	if record.BackupCount < slot {
		record.BackupCount = slot
	}
	return nil
}

// applyMetadata copies caller-supplied metadata onto the record.
func applyMetadata(record *Record, meta *Metadata) {
	if meta == nil {
		return
	}
	if meta.ExpiresAt != nil {
		record.ExpiresAt = meta.ExpiresAt
	}
	if meta.RotationTag != "" {
		record.RotationTag = meta.RotationTag
	}
	if len(meta.Tags) > 0 {
		record.Tags = append([]string(nil), meta.Tags...)
	}
}

// overwriteFile overwrites the file with random data the given number
// of times, syncing after each pass.
func overwriteFile(path string, passes int) error {
	if passes <= 0 {
		passes = 1
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file for secure delete: %w", err)
	}
	size := info.Size()

	for pass := 0; pass < passes; pass++ {
		noise := make([]byte, size)
		if _, err := rand.Read(noise); err != nil {
			return fmt.Errorf("failed to generate overwrite data: %w", err)
		}

		f, err := os.OpenFile(path, os.O_WRONLY, 0o600) //nolint:gosec // path built from validated id
		if err != nil {
			return fmt.Errorf("failed to open file for secure delete: %w", err)
		}
		if _, err := f.WriteAt(noise, 0); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to overwrite file: %w", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to sync overwrite: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close file after overwrite: %w", err)
		}
	}

	return nil
}
