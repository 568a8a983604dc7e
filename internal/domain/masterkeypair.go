package domain

import "time"

// ApplicationVersion is a client-presentable credential pair scoped to one application.
type ApplicationVersion struct {
	ApplicationID      string
	ApplicationKey     []byte // 16 bytes
	ApplicationSecret  []byte // 16 bytes
	Supported          bool
}

// MasterKeyPair is an application-wide long-term EC keypair used to authenticate the
// server's side of activation. Only the newest per application signs new activations;
// older pairs remain valid for records that snapshotted them.
type MasterKeyPair struct {
	ID            string
	ApplicationID string
	PublicKey     []byte
	PrivateKey    []byte
	CreatedAt     time.Time
}
