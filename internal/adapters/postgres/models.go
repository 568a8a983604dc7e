package postgres

import "time"

type activationModel struct {
	ActivationID      string     `gorm:"column:activation_id;type:uuid;primaryKey"`
	ActivationCode    string     `gorm:"column:activation_code"`
	ApplicationID     string     `gorm:"column:application_id"`
	UserID            string     `gorm:"column:user_id"`
	MasterKeyPairID   string     `gorm:"column:master_keypair_id"`
	ServerPublicKey   []byte     `gorm:"column:server_public_key"`
	ServerPrivateKey  []byte     `gorm:"column:server_private_key"`
	KeyEncryption     string     `gorm:"column:key_encryption"`
	DevicePublicKey   []byte     `gorm:"column:device_public_key"`
	Counter           int64      `gorm:"column:counter"`
	CtrData           []byte     `gorm:"column:ctr_data"`
	FailedAttempts    int32      `gorm:"column:failed_attempts"`
	MaxFailedAttempts int32      `gorm:"column:max_failed_attempts"`
	Status            string     `gorm:"column:status"`
	BlockedReason     string     `gorm:"column:blocked_reason"`
	TimestampCreated  time.Time  `gorm:"column:timestamp_created"`
	TimestampExpire   time.Time  `gorm:"column:timestamp_expire"`
	TimestampLastUsed *time.Time `gorm:"column:timestamp_last_used"`
	ActivationOTP     string     `gorm:"column:activation_otp"`
	OTPValidation     string     `gorm:"column:otp_validation"`
	Version           int        `gorm:"column:version"`
	Flags             string     `gorm:"column:flags;type:jsonb"`
}

func (activationModel) TableName() string { return "pa_activation" }

type applicationVersionModel struct {
	ApplicationID     string `gorm:"column:application_id;primaryKey"`
	ApplicationKey    []byte `gorm:"column:application_key"`
	ApplicationSecret []byte `gorm:"column:application_secret"`
	Supported         bool   `gorm:"column:supported"`
}

func (applicationVersionModel) TableName() string { return "pa_application_version" }

type masterKeyPairModel struct {
	ID            string    `gorm:"column:id;type:uuid;primaryKey"`
	ApplicationID string    `gorm:"column:application_id"`
	PublicKey     []byte    `gorm:"column:public_key"`
	PrivateKey    []byte    `gorm:"column:private_key"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (masterKeyPairModel) TableName() string { return "pa_master_keypair" }

type activationHistoryModel struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ActivationID   string    `gorm:"column:activation_id"`
	Status         string    `gorm:"column:status"`
	Timestamp      time.Time `gorm:"column:timestamp"`
	ExternalUserID string    `gorm:"column:external_user_id"`
}

func (activationHistoryModel) TableName() string { return "pa_activation_history" }

type signatureAuditModel struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ActivationID    string    `gorm:"column:activation_id"`
	ApplicationID   string    `gorm:"column:application_id"`
	UserID          string    `gorm:"column:user_id"`
	SignatureType   string    `gorm:"column:signature_type"`
	DataFingerprint string    `gorm:"column:data_fingerprint"`
	Result          string    `gorm:"column:result"`
	Notes           string    `gorm:"column:notes"`
	Counter         int64     `gorm:"column:counter"`
	Timestamp       time.Time `gorm:"column:timestamp"`
}

func (signatureAuditModel) TableName() string { return "pa_signature_audit" }

type activationCallbackModel struct {
	CallbackID     string     `gorm:"column:callback_id;type:uuid;primaryKey"`
	ActivationID   string     `gorm:"column:activation_id"`
	Status         string     `gorm:"column:status"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (activationCallbackModel) TableName() string { return "pa_activation_callback" }
