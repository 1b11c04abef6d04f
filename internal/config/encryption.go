// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package config provides configuration management for the application.
// This file implements the at-rest encryption for RCON passwords cached
// on a server's database row. The Supervisor reads rcon.password out of
// each server's server.properties on every command (§3.1, §4.3); caching
// a copy on models.Server.RconPasswordEnc lets it skip that file read
// without ever storing the password in plaintext (§6.3).
//
// Encryption Algorithm:
//   - AES-256-GCM (authenticated encryption)
//   - 12-byte random nonce per encryption
//   - Key derived from SecurityConfig.MasterSecret using HKDF-SHA256
//
// Ciphertext layout: base64(version_byte || nonce || sealed || tag). The
// leading version byte lets a future key-rotation or algorithm change
// tell an old envelope apart from a new one before attempting to open it;
// today only encryptionVersion1 exists.
//
// Example Usage:
//
//	enc, err := config.NewCredentialEncryptor(cfg)
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("failed to initialize credential encryptor")
//	}
//
//	server.RconPasswordEnc, err = enc.Encrypt(rconPassword)
//	...
//	rconPassword, err = enc.Decrypt(server.RconPasswordEnc)
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// credentialEncryptionSalt binds the derived key to this
	// application's RCON-password-caching use case, so the same master
	// secret used elsewhere (e.g. a future auth token signer) never
	// derives the same AES key.
	credentialEncryptionSalt = "forgekeeper-rcon-credentials"

	// credentialEncryptionInfo is the HKDF info parameter for key derivation.
	credentialEncryptionInfo = "credential-encryption-v1"

	// aesKeySize is the size of the AES key in bytes (256 bits).
	aesKeySize = 32

	// gcmNonceSize is the size of the GCM nonce in bytes.
	gcmNonceSize = 12

	// encryptionVersion1 is the only envelope version this package
	// currently writes or accepts.
	encryptionVersion1 byte = 1
)

var (
	// ErrEmptySecret is returned when SecurityConfig.MasterSecret is unset.
	ErrEmptySecret = errors.New("master secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt an empty
	// RCON password.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt an empty
	// RconPasswordEnc value.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed is returned when decryption fails (invalid
	// ciphertext, tampered data, or the wrong master secret).
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrCiphertextTooShort is returned when the ciphertext is shorter than the minimum length.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrUnsupportedVersion is returned when the ciphertext's leading
	// version byte does not match any envelope this build can open.
	ErrUnsupportedVersion = errors.New("unsupported ciphertext envelope version")
)

// CredentialEncryptor seals and opens a server's cached RCON password
// with AES-256-GCM, deriving the key from SecurityConfig.MasterSecret via
// HKDF so the database never needs its own key management.
type CredentialEncryptor struct {
	cipher cipher.AEAD
}

// NewCredentialEncryptor builds a CredentialEncryptor from cfg's
// SecurityConfig. Returns ErrEmptySecret if MasterSecret is unset — the
// caller (cmd/forgekeeperd) treats that as "RCON passwords are not
// cached at rest" rather than a fatal condition, since the Supervisor
// can always fall back to reading server.properties directly.
func NewCredentialEncryptor(cfg *Config) (*CredentialEncryptor, error) {
	if cfg.Security.MasterSecret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(cfg.Security.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{cipher: gcm}, nil
}

// Encrypt seals an RCON password into a base64-encoded envelope:
// base64(version || nonce || ciphertext || tag).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.cipher.Seal(nil, nonce, []byte(plaintext), nil)

	envelope := make([]byte, 0, 1+len(nonce)+len(sealed))
	envelope = append(envelope, encryptionVersion1)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, sealed...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt opens an envelope produced by Encrypt and returns the RCON
// password it carries.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	// version(1) + nonce(12) + at least 1 byte + GCM tag(16).
	minLength := 1 + gcmNonceSize + 1 + e.cipher.Overhead()
	if len(data) < minLength {
		return "", ErrCiphertextTooShort
	}

	if data[0] != encryptionVersion1 {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	rest := data[1:]
	nonce := rest[:gcmNonceSize]
	sealed := rest[gcmNonceSize:]

	plaintext, err := e.cipher.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// MaskRconPassword returns a redacted form of an RCON password suitable
// for logging or an admin UI — the last 4 characters preceded by
// asterisks, never the full value.
func MaskRconPassword(password string) string {
	if password == "" {
		return ""
	}
	if len(password) <= 4 {
		return "****"
	}
	return "****..." + password[len(password)-4:]
}

// deriveKey derives a 256-bit AES key from the master secret using HKDF-SHA256.
func deriveKey(masterSecret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(masterSecret),
		[]byte(credentialEncryptionSalt),
		[]byte(credentialEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}

	return key, nil
}

// SelfCheck round-trips a fixed probe value through Encrypt/Decrypt,
// letting the daemon fail fast at boot if the configured master secret
// somehow produces a cipher that can't open its own output (§6.3) —
// cheaper than discovering it the first time a real RCON password needs
// decrypting.
func (e *CredentialEncryptor) SelfCheck() error {
	const probe = "forgekeeper-encryption-self-check"

	sealed, err := e.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("self-check encrypt failed: %w", err)
	}

	opened, err := e.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("self-check decrypt failed: %w", err)
	}

	if opened != probe {
		return errors.New("self-check round-trip mismatch")
	}

	return nil
}
