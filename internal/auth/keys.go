// Package auth issues and verifies the tokens that protect the portal's admin API.
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "admin_jwt.key"
	publicKeyFile  = "admin_jwt.pub"
)

// KeyPair holds the ECDSA P-256 key pair used to sign admin tokens.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// GenerateKeyPair creates a new ECDSA P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// Save writes both keys as PEM files into dir.
func (kp *KeyPair) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	privBytes, err := x509.MarshalECPrivateKey(kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := writePEM(filepath.Join(dir, privateKeyFile), "EC PRIVATE KEY", privBytes, 0600); err != nil {
		return err
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	return writePEM(filepath.Join(dir, publicKeyFile), "PUBLIC KEY", pubBytes, 0644)
}

// LoadKeyPair reads the key pair previously saved in dir.
func LoadKeyPair(dir string) (*KeyPair, error) {
	block, err := readPEM(filepath.Join(dir, privateKeyFile), "EC PRIVATE KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	block, err = readPEM(filepath.Join(dir, publicKeyFile), "PUBLIC KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	publicKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not an ECDSA public key")
	}

	return &KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

// LoadOrGenerateKeyPair loads the keys in dir, generating and saving new ones when
// none exist yet.
func LoadOrGenerateKeyPair(dir string) (*KeyPair, error) {
	kp, err := LoadKeyPair(dir)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	kp, err = GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	if err := kp.Save(dir); err != nil {
		return nil, fmt.Errorf("failed to save key pair: %w", err)
	}

	return kp, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readPEM(path, blockType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("unexpected key type: %s", block.Type)
	}
	return block, nil
}
