// Package ports declares the interfaces the application layer depends on. There is no
// PasswordHasher/TokenSigner/OIDCVerifier port here: this core issues no bearer tokens and
// manages no user credentials of its own (userId is opaque, spec §1); ServerKeyCipher in
// crypto.go is the only at-rest-encryption concern this core owns.
package ports
