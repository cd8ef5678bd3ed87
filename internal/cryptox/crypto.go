// Package cryptox holds the secret vault: AES-256-GCM encryption of the
// user's real upstream secret at rest.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the master key length required by the vault (AES-256).
const KeySize = 32

// DeriveMasterKey stretches a passphrase into a KeySize key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// ParseMasterKey turns configured key material into a vault key. A value
// that decodes from base64 to exactly KeySize bytes is used as is; anything
// else is treated as a passphrase and run through DeriveMasterKey with salt.
func ParseMasterKey(material string, salt string) ([]byte, error) {
	if material == "" {
		return nil, fmt.Errorf("%w: master key is not configured", common.ErrVault)
	}
	if raw, err := base64.StdEncoding.DecodeString(material); err == nil && len(raw) == KeySize {
		return raw, nil
	}
	if salt == "" {
		return nil, fmt.Errorf("%w: passphrase master key requires a salt", common.ErrVault)
	}
	return DeriveMasterKey([]byte(material), []byte(salt)), nil
}

// Vault encrypts and decrypts real secrets with a process-wide key. It is
// immutable after construction and safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// NewVault builds a Vault from a KeySize key. The key slice is not retained.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", common.ErrVault, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrVault, err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrVault, err)
	}

	return &Vault{aead: aesgcm}, nil
}

// Encrypt seals secret under a fresh random IV. Encrypting the same secret
// twice yields different ciphertexts.
func (v *Vault) Encrypt(secret string) (iv, ciphertext []byte, err error) {

	// nonce
	iv, err = common.GenerateRandByteArray(v.aead.NonceSize())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrVault, err)
	}

	ciphertext = v.aead.Seal(nil, iv, []byte(secret), nil)

	return iv, ciphertext, nil
}

// Decrypt opens ciphertext with iv. A mismatched pair or a tampered record
// fails GCM authentication and returns ErrVault.
func (v *Vault) Decrypt(iv, ciphertext []byte) (string, error) {
	if len(iv) != v.aead.NonceSize() {
		return "", fmt.Errorf("%w: corrupt record: bad iv length %d", common.ErrVault, len(iv))
	}

	plaintext, err := v.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: corrupt record: %v", common.ErrVault, err)
	}

	return string(plaintext), nil
}
