package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// Dependencies wires every port the service needs. Grouping them in one struct keeps
// NewService's signature stable as the crypto/persistence adapters evolve.
type Dependencies struct {
	Config Config

	Activations    ports.ActivationRepository
	AppVersions    ports.ApplicationVersionRepository
	MasterKeyPairs ports.MasterKeyPairRepository
	History        ports.ActivationHistoryRepository
	SignatureAudit ports.SignatureAuditRepository
	Callbacks      ports.CallbackRepository

	AppVersionCache    ports.ApplicationVersionCache
	MasterKeyPairCache ports.MasterKeyPairCache

	CryptoByVersion map[domain.Version]ports.ActivationCrypto
	SignatureEngine ports.SignatureEngine
	ECDSAVerifier   ports.ECDSAVerifier
	ServerKeyCipher ports.ServerKeyCipher

	Logger *slog.Logger
}

// Service is the PowerAuth core façade: every activation and signature operation in
// spec §4 is a method here, and every method is the sole write path for its concern.
type Service struct {
	cfg Config

	activations    ports.ActivationRepository
	appVersions    ports.ApplicationVersionRepository
	masterKeyPairs ports.MasterKeyPairRepository
	history        ports.ActivationHistoryRepository
	signatureAudit ports.SignatureAuditRepository
	callbacks      ports.CallbackRepository

	appVersionCache    ports.ApplicationVersionCache
	masterKeyPairCache ports.MasterKeyPairCache

	cryptoByVersion map[domain.Version]ports.ActivationCrypto
	signatureEngine ports.SignatureEngine
	ecdsaVerifier   ports.ECDSAVerifier
	serverKeyCipher ports.ServerKeyCipher

	logger *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:                deps.Config,
		activations:        deps.Activations,
		appVersions:        deps.AppVersions,
		masterKeyPairs:     deps.MasterKeyPairs,
		history:            deps.History,
		signatureAudit:     deps.SignatureAudit,
		callbacks:          deps.Callbacks,
		appVersionCache:    deps.AppVersionCache,
		masterKeyPairCache: deps.MasterKeyPairCache,
		cryptoByVersion:    deps.CryptoByVersion,
		signatureEngine:    deps.SignatureEngine,
		ecdsaVerifier:      deps.ECDSAVerifier,
		serverKeyCipher:    deps.ServerKeyCipher,
		logger:             logger.With("module", "application", "layer", "service"),
	}
}

func (s *Service) cryptoFor(v domain.Version) (ports.ActivationCrypto, error) {
	c, ok := s.cryptoByVersion[v]
	if !ok {
		return nil, domain.ErrInvalidInput
	}
	return c, nil
}

// resolveApplicationVersion checks the cache before falling back to Postgres, populating
// the cache on a miss (spec §5 "shared state").
func (s *Service) resolveApplicationVersion(ctx context.Context, applicationKey []byte) (*domain.ApplicationVersion, error) {
	if s.appVersionCache != nil {
		if cached, ok, err := s.appVersionCache.Get(ctx, applicationKey); err == nil && ok {
			return cached, nil
		}
	}
	version, err := s.appVersions.GetByApplicationKey(ctx, applicationKey)
	if err != nil {
		return nil, err
	}
	if s.appVersionCache != nil {
		_ = s.appVersionCache.Put(ctx, applicationKey, version, 5*time.Minute)
	}
	return version, nil
}

func (s *Service) resolveCurrentMasterKeyPair(ctx context.Context, applicationID string) (*domain.MasterKeyPair, error) {
	if s.masterKeyPairCache != nil {
		if cached, ok, err := s.masterKeyPairCache.GetCurrent(ctx, applicationID); err == nil && ok {
			return cached, nil
		}
	}
	pair, err := s.masterKeyPairs.GetCurrent(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if s.masterKeyPairCache != nil {
		_ = s.masterKeyPairCache.PutCurrent(ctx, applicationID, pair, 5*time.Minute)
	}
	return pair, nil
}

// appendHistoryAndCallback writes the transition log entry and then enqueues the outbound
// notification in the same request, keeping the durability-before-enqueue ordering spec §5
// and §7 require without a shared transaction: when the history append fails, the failure
// is logged and no callback is enqueued.
func (s *Service) appendHistoryAndCallback(ctx context.Context, rec *domain.Record, externalUserID string) {
	now := time.Now().UTC()
	entry := domain.ActivationHistoryEntry{
		ActivationID:   rec.ActivationID,
		Status:         rec.Status,
		Timestamp:      now,
		ExternalUserID: externalUserID,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "history append failed",
			"operation", "append_history",
			"outcome", "failure",
			"activation_id", rec.ActivationID,
			"error", err,
		)
		return
	}
	if s.callbacks == nil {
		return
	}
	payload := []byte(`{"activationId":"` + rec.ActivationID + `","activationStatus":"` + string(rec.Status) + `"}`)
	event := ports.CallbackEvent{
		CallbackID:   uuid.New(),
		ActivationID: rec.ActivationID,
		Status:       string(rec.Status),
		Payload:      payload,
		OccurredAt:   now,
	}
	if err := s.callbacks.Enqueue(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "callback enqueue failed",
			"operation", "enqueue_callback",
			"outcome", "failure",
			"activation_id", rec.ActivationID,
			"error", err,
		)
	}
}
