package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/powerauth-server/internal/adapters/crypto"
	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// fakeActivationRepo mirrors postgres.ActivationRepository's Mutate merge semantics
// (lock, let fn observe, merge the returned mutation, tombstone on request) over a plain
// map instead of a database row lock.
type fakeActivationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.Record
}

func newFakeActivationRepo() *fakeActivationRepo {
	return &fakeActivationRepo{records: map[string]*domain.Record{}}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneRecord(rec *domain.Record) *domain.Record {
	clone := *rec
	clone.ServerPublicKey = copyBytes(rec.ServerPublicKey)
	clone.ServerPrivateKey = copyBytes(rec.ServerPrivateKey)
	clone.DevicePublicKey = copyBytes(rec.DevicePublicKey)
	return &clone
}

func (f *fakeActivationRepo) Insert(ctx context.Context, rec *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.ActivationCode == rec.ActivationCode &&
			(existing.Status == domain.StatusCreated || existing.Status == domain.StatusPendingCommit) {
			return fmt.Errorf("%w: activation code already in use", domain.ErrInvalidState)
		}
	}
	f.records[rec.ActivationID] = cloneRecord(rec)
	return nil
}

func (f *fakeActivationRepo) GetByID(ctx context.Context, activationID string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[activationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (f *fakeActivationRepo) GetByCode(ctx context.Context, code string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ActivationCode == code {
			return cloneRecord(rec), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeActivationRepo) Mutate(ctx context.Context, activationID string, fn func(rec *domain.Record) (*ports.ActivationMutation, error)) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.records[activationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := cloneRecord(stored)

	mutation, err := fn(rec)
	if err != nil {
		return nil, err
	}
	if mutation == nil {
		return rec, nil
	}

	rec.Counter = mutation.Counter
	rec.CtrData = mutation.CtrData
	rec.FailedAttempts = mutation.FailedAttempts
	rec.Status = mutation.Status
	if mutation.BlockedReason != "" {
		rec.BlockedReason = mutation.BlockedReason
	}
	if !mutation.LastUsedAt.IsZero() {
		rec.TimestampLastUsed = mutation.LastUsedAt
	}
	if mutation.DevicePublicKey != nil {
		rec.DevicePublicKey = mutation.DevicePublicKey
	}
	if mutation.ActivationOTP != "" {
		rec.ActivationOTP = mutation.ActivationOTP
	}
	if mutation.OTPValidation != "" {
		rec.OTPValidation = mutation.OTPValidation
	}
	if mutation.ServerPrivateKey != nil {
		rec.ServerPrivateKey = mutation.ServerPrivateKey
	}
	if mutation.Tombstone {
		rec.Tombstone()
	}

	f.records[activationID] = cloneRecord(rec)
	return rec, nil
}

func (f *fakeActivationRepo) CodeInUse(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ActivationCode == code &&
			(rec.Status == domain.StatusCreated || rec.Status == domain.StatusPendingCommit) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeActivationRepo) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Record
	for _, rec := range f.records {
		if (rec.Status == domain.StatusCreated || rec.Status == domain.StatusPendingCommit) && asOf.After(rec.TimestampExpire) {
			out = append(out, cloneRecord(rec))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// setExpiry reaches directly into the backing store, standing in for a clock that has
// already advanced past TimestampExpire without needing the test to sleep.
func (f *fakeActivationRepo) setExpiry(activationID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[activationID]; ok {
		rec.TimestampExpire = at
	}
}

type fakeAppVersionRepo struct {
	byKey map[string]*domain.ApplicationVersion
}

func newFakeAppVersionRepo() *fakeAppVersionRepo {
	return &fakeAppVersionRepo{byKey: map[string]*domain.ApplicationVersion{}}
}

func (f *fakeAppVersionRepo) add(v *domain.ApplicationVersion) {
	f.byKey[string(v.ApplicationKey)] = v
}

func (f *fakeAppVersionRepo) GetByApplicationKey(ctx context.Context, applicationKey []byte) (*domain.ApplicationVersion, error) {
	v, ok := f.byKey[string(applicationKey)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

type fakeMasterKeyPairRepo struct {
	byID      map[string]*domain.MasterKeyPair
	currentID map[string]string
}

func newFakeMasterKeyPairRepo() *fakeMasterKeyPairRepo {
	return &fakeMasterKeyPairRepo{byID: map[string]*domain.MasterKeyPair{}, currentID: map[string]string{}}
}

func (f *fakeMasterKeyPairRepo) add(pair *domain.MasterKeyPair) {
	f.byID[pair.ID] = pair
	f.currentID[pair.ApplicationID] = pair.ID
}

func (f *fakeMasterKeyPairRepo) GetCurrent(ctx context.Context, applicationID string) (*domain.MasterKeyPair, error) {
	id, ok := f.currentID[applicationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeMasterKeyPairRepo) GetByID(ctx context.Context, id string) (*domain.MasterKeyPair, error) {
	pair, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pair, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.ActivationHistoryEntry
}

func newFakeHistoryRepo() *fakeHistoryRepo { return &fakeHistoryRepo{} }

func (f *fakeHistoryRepo) Append(ctx context.Context, entry domain.ActivationHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistoryRepo) ListByActivation(ctx context.Context, activationID string, limit, offset int) ([]domain.ActivationHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActivationHistoryEntry
	for _, e := range f.entries {
		if e.ActivationID == activationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeSignatureAuditRepo struct {
	mu      sync.Mutex
	entries []domain.SignatureAuditEntry
}

func newFakeSignatureAuditRepo() *fakeSignatureAuditRepo { return &fakeSignatureAuditRepo{} }

func (f *fakeSignatureAuditRepo) Append(ctx context.Context, entry domain.SignatureAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeSignatureAuditRepo) ListByActivation(ctx context.Context, activationID string, limit, offset int) ([]domain.SignatureAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SignatureAuditEntry
	for _, e := range f.entries {
		if e.ActivationID == activationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCallbackRepo struct {
	mu     sync.Mutex
	queued []ports.CallbackEvent
}

func newFakeCallbackRepo() *fakeCallbackRepo { return &fakeCallbackRepo{} }

func (f *fakeCallbackRepo) Enqueue(ctx context.Context, event ports.CallbackEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, event)
	return nil
}

func (f *fakeCallbackRepo) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.CallbackRecord, error) {
	return nil, nil
}

func (f *fakeCallbackRepo) MarkPublished(ctx context.Context, callbackID uuid.UUID, claimToken string, at time.Time) error {
	return nil
}

func (f *fakeCallbackRepo) MarkFailed(ctx context.Context, callbackID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return nil
}

func (f *fakeCallbackRepo) MarkDeadLettered(ctx context.Context, callbackID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return nil
}

var (
	_ ports.ActivationRepository        = (*fakeActivationRepo)(nil)
	_ ports.ApplicationVersionRepository = (*fakeAppVersionRepo)(nil)
	_ ports.MasterKeyPairRepository      = (*fakeMasterKeyPairRepo)(nil)
	_ ports.ActivationHistoryRepository  = (*fakeHistoryRepo)(nil)
	_ ports.SignatureAuditRepository     = (*fakeSignatureAuditRepo)(nil)
	_ ports.CallbackRepository           = (*fakeCallbackRepo)(nil)
)

// fixture bundles a Service wired to in-memory fakes plus one pre-registered application
// (applicationID "app-1") with its master keypair, so tests only deal with activation-level
// setup.
type fixture struct {
	svc *Service

	activations    *fakeActivationRepo
	appVersions    *fakeAppVersionRepo
	masterKeyPairs *fakeMasterKeyPairRepo
	history        *fakeHistoryRepo
	signatureAudit *fakeSignatureAuditRepo
	callbacks      *fakeCallbackRepo

	applicationID     string
	applicationKey    []byte
	applicationSecret []byte
	masterPublicKey   []byte
	masterPrivateKey  []byte
}

func defaultTestConfig() Config {
	return Config{
		ActivationValidity:              5 * time.Minute,
		SignatureMaxFailedAttempts:      5,
		SignatureValidationLookahead:    20,
		ActivationCodeGenerationRetries: 10,
		ShortIDGenerationRetries:        10,
		DefaultOTPValidation:            "NONE",
		DefaultVersion:                  3,
		ServerKeyEncryption:             "NO_ENCRYPTION",
		ExpirationSweepBatchSize:        100,
	}
}

func newFixture(t testingT) *fixture {
	return newFixtureWithConfig(t, defaultTestConfig())
}

func newFixtureWithConfig(t testingT, cfg Config) *fixture {
	activations := newFakeActivationRepo()
	appVersions := newFakeAppVersionRepo()
	masterKeyPairs := newFakeMasterKeyPairRepo()
	history := newFakeHistoryRepo()
	signatureAudit := newFakeSignatureAuditRepo()
	callbacks := newFakeCallbackRepo()

	applicationID := "app-1"
	applicationKey := []byte("0123456789ABCDEF")
	applicationSecret := []byte("FEDCBA9876543210")
	appVersions.add(&domain.ApplicationVersion{
		ApplicationID:     applicationID,
		ApplicationKey:    applicationKey,
		ApplicationSecret: applicationSecret,
		Supported:         true,
	})

	masterPub, masterPriv, err := crypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("generate master keypair: %v", err)
	}
	masterKeyPairs.add(&domain.MasterKeyPair{
		ID:            "mk-1",
		ApplicationID: applicationID,
		PublicKey:     masterPub,
		PrivateKey:    masterPriv,
		CreatedAt:     time.Now().UTC(),
	})

	var serverKeyCipher ports.ServerKeyCipher
	if domain.ServerKeyEncryption(cfg.ServerKeyEncryption) == domain.ServerKeyEncryptionAESHMAC {
		serverKeyCipher = crypto.NewServerKeyCipher([]byte("0123456789ABCDEF0123456789ABCDEF"))
	}

	svc := NewService(Dependencies{
		Config:         cfg,
		Activations:    activations,
		AppVersions:    appVersions,
		MasterKeyPairs: masterKeyPairs,
		History:        history,
		SignatureAudit: signatureAudit,
		Callbacks:      callbacks,
		CryptoByVersion: map[domain.Version]ports.ActivationCrypto{
			domain.VersionV2: crypto.NewV2(),
			domain.VersionV3: crypto.NewV3(),
		},
		SignatureEngine: crypto.NewEngine(),
		ECDSAVerifier:   crypto.NewECDSAVerifier(),
		ServerKeyCipher: serverKeyCipher,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &fixture{
		svc:               svc,
		activations:       activations,
		appVersions:       appVersions,
		masterKeyPairs:    masterKeyPairs,
		history:           history,
		signatureAudit:    signatureAudit,
		callbacks:         callbacks,
		applicationID:     applicationID,
		applicationKey:    applicationKey,
		applicationSecret: applicationSecret,
		masterPublicKey:   masterPub,
		masterPrivateKey:  masterPriv,
	}
}

// testingT is the subset of *testing.T the fixture needs, so helper construction can live
// outside any one _test.go file's testing import without narrowing which file calls it.
type testingT interface {
	Fatalf(format string, args ...any)
	Helper()
}

// v3DeviceSharedInfo is the protocol-fixed ECIES binding string for v3 activation key
// exchange (spec §4.1); device and server must agree on it out of band.
var v3DeviceSharedInfo = []byte("powerauth/v3/activation")

// deviceKeyExchangeV3 plays the device side of a v3 PrepareActivation/CreateActivation call:
// generates a device ECDH keypair and wraps its public key for the application's current
// master key, the way a real client SDK would.
func deviceKeyExchangeV3(t testingT, masterPublicKey, applicationSecret []byte) (devicePub, devicePriv, envelope []byte) {
	t.Helper()
	devicePub, devicePriv, err := crypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatalf("generate device keypair: %v", err)
	}
	sharedInfo := append(append([]byte{}, v3DeviceSharedInfo...), applicationSecret...)
	env, _, err := crypto.EciesEncrypt(masterPublicKey, sharedInfo, devicePub)
	if err != nil {
		t.Fatalf("ecies encrypt device envelope: %v", err)
	}
	return devicePub, devicePriv, env.Marshal()
}

// deviceFactorKeys derives the same factor key family the server computes in
// factorKeysFor, from the device's side of the permanent ECDH pair (devicePrivateKey,
// serverPublicKey) rather than the ephemeral key-exchange secret.
func deviceFactorKeys(t testingT, devicePrivateKey, serverPublicKey []byte) ports.FactorKeys {
	t.Helper()
	sharedSecret, err := crypto.ECDH(devicePrivateKey, serverPublicKey)
	if err != nil {
		t.Fatalf("device ecdh: %v", err)
	}
	return crypto.NewV3().DeriveFactorKeys(sharedSecret)
}

// signAt computes the client-side PowerAuth signature for one counter/ctrData position, so
// tests can act as a device signing at an arbitrary point in the sequence (e.g. to exercise
// the lookahead window).
func signAt(t testingT, data, applicationSecret []byte, counter uint64, ctrData [16]byte, version domain.Version, keys ports.FactorKeys, signatureType string) string {
	t.Helper()
	sig, err := crypto.NewEngine().ComputeExpected(data, applicationSecret, counter, ctrData, version, keys, signatureType)
	if err != nil {
		t.Fatalf("compute signature: %v", err)
	}
	return sig
}

func advanceCtrData(n int, ctrData [16]byte) [16]byte {
	engine := crypto.NewEngine()
	for i := 0; i < n; i++ {
		ctrData = engine.AdvanceCtrData(ctrData)
	}
	return ctrData
}

func bg() context.Context { return context.Background() }
