package postgres

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
	"gorm.io/gorm"
)

func toDomainActivation(m activationModel) *domain.Record {
	rec := &domain.Record{
		ActivationID:      m.ActivationID,
		ActivationCode:    m.ActivationCode,
		ApplicationID:     m.ApplicationID,
		UserID:            m.UserID,
		MasterKeyPairID:   m.MasterKeyPairID,
		ServerPublicKey:   m.ServerPublicKey,
		ServerPrivateKey:  m.ServerPrivateKey,
		KeyEncryption:     domain.ServerKeyEncryption(m.KeyEncryption),
		DevicePublicKey:   m.DevicePublicKey,
		Counter:           uint64(m.Counter),
		FailedAttempts:    uint32(m.FailedAttempts),
		MaxFailedAttempts: uint32(m.MaxFailedAttempts),
		Status:            domain.Status(m.Status),
		BlockedReason:     m.BlockedReason,
		TimestampCreated:  m.TimestampCreated,
		TimestampExpire:   m.TimestampExpire,
		ActivationOTP:     m.ActivationOTP,
		OTPValidation:     domain.OTPValidation(m.OTPValidation),
		Version:           domain.Version(m.Version),
	}
	copy(rec.CtrData[:], m.CtrData)
	if m.TimestampLastUsed != nil {
		rec.TimestampLastUsed = *m.TimestampLastUsed
	}
	if m.Flags != "" {
		_ = json.Unmarshal([]byte(m.Flags), &rec.Flags)
	}
	return rec
}

func fromDomainActivation(rec *domain.Record) activationModel {
	flags, _ := json.Marshal(rec.Flags)
	var lastUsed *time.Time
	if !rec.TimestampLastUsed.IsZero() {
		t := rec.TimestampLastUsed
		lastUsed = &t
	}
	return activationModel{
		ActivationID:      rec.ActivationID,
		ActivationCode:    rec.ActivationCode,
		ApplicationID:     rec.ApplicationID,
		UserID:            rec.UserID,
		MasterKeyPairID:   rec.MasterKeyPairID,
		ServerPublicKey:   rec.ServerPublicKey,
		ServerPrivateKey:  rec.ServerPrivateKey,
		KeyEncryption:     string(rec.KeyEncryption),
		DevicePublicKey:   rec.DevicePublicKey,
		Counter:           int64(rec.Counter),
		CtrData:           append([]byte{}, rec.CtrData[:]...),
		FailedAttempts:    int32(rec.FailedAttempts),
		MaxFailedAttempts: int32(rec.MaxFailedAttempts),
		Status:            string(rec.Status),
		BlockedReason:     rec.BlockedReason,
		TimestampCreated:  rec.TimestampCreated,
		TimestampExpire:   rec.TimestampExpire,
		TimestampLastUsed: lastUsed,
		ActivationOTP:     rec.ActivationOTP,
		OTPValidation:     string(rec.OTPValidation),
		Version:           int(rec.Version),
		Flags:             string(flags),
	}
}

func toDomainApplicationVersion(m applicationVersionModel) *domain.ApplicationVersion {
	return &domain.ApplicationVersion{
		ApplicationID:     m.ApplicationID,
		ApplicationKey:    m.ApplicationKey,
		ApplicationSecret: m.ApplicationSecret,
		Supported:         m.Supported,
	}
}

func toDomainMasterKeyPair(m masterKeyPairModel) *domain.MasterKeyPair {
	return &domain.MasterKeyPair{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		PublicKey:     m.PublicKey,
		PrivateKey:    m.PrivateKey,
		CreatedAt:     m.CreatedAt,
	}
}

func toDomainHistoryEntry(m activationHistoryModel) domain.ActivationHistoryEntry {
	return domain.ActivationHistoryEntry{
		ActivationID:   m.ActivationID,
		Status:         domain.Status(m.Status),
		Timestamp:      m.Timestamp,
		ExternalUserID: m.ExternalUserID,
	}
}

func toDomainAuditEntry(m signatureAuditModel) domain.SignatureAuditEntry {
	return domain.SignatureAuditEntry{
		ActivationID:    m.ActivationID,
		ApplicationID:   m.ApplicationID,
		UserID:          m.UserID,
		SignatureType:   m.SignatureType,
		DataFingerprint: m.DataFingerprint,
		Result:          domain.SignatureResult(m.Result),
		Notes:           m.Notes,
		Counter:         uint64(m.Counter),
		Timestamp:       m.Timestamp,
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
