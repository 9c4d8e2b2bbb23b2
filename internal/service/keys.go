package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/erpcore/erp/internal/config"
)

var ErrInvalidKey = errors.New("invalid key")

// KeyPair is one RSA signing key and its verification half.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// KeyMaterial holds the access and refresh key pairs. It is built once at
// startup and only read afterwards.
type KeyMaterial struct {
	Access  KeyPair
	Refresh KeyPair
}

func LoadKeyMaterial(cfg *config.KeysConfig) (*KeyMaterial, error) {
	access, err := loadKeyPair(cfg.PrivateAccessKey, cfg.PublicAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load access key pair: %w", err)
	}
	refresh, err := loadKeyPair(cfg.PrivateRefreshKey, cfg.PublicRefreshKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh key pair: %w", err)
	}
	return &KeyMaterial{Access: access, Refresh: refresh}, nil
}

// GenerateKeyMaterial creates two fresh, independent RSA key pairs.
func GenerateKeyMaterial(bits int) (*KeyMaterial, error) {
	access, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access key: %w", err)
	}
	refresh, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh key: %w", err)
	}
	return &KeyMaterial{
		Access:  KeyPair{Private: access, Public: &access.PublicKey},
		Refresh: KeyPair{Private: refresh, Public: &refresh.PublicKey},
	}, nil
}

// WriteKeyMaterial writes the four PEM files named in cfg. Private keys are
// written PKCS#8 with mode 0600, public keys PKIX with mode 0644.
func WriteKeyMaterial(km *KeyMaterial, cfg *config.KeysConfig) error {
	files := []struct {
		path string
		pub  bool
		pair KeyPair
	}{
		{cfg.PrivateAccessKey, false, km.Access},
		{cfg.PublicAccessKey, true, km.Access},
		{cfg.PrivateRefreshKey, false, km.Refresh},
		{cfg.PublicRefreshKey, true, km.Refresh},
	}

	for _, f := range files {
		var (
			block *pem.Block
			mode  os.FileMode
		)
		if f.pub {
			der, err := x509.MarshalPKIXPublicKey(f.pair.Public)
			if err != nil {
				return fmt.Errorf("failed to marshal public key: %w", err)
			}
			block, mode = &pem.Block{Type: "PUBLIC KEY", Bytes: der}, 0o644
		} else {
			der, err := x509.MarshalPKCS8PrivateKey(f.pair.Private)
			if err != nil {
				return fmt.Errorf("failed to marshal private key: %w", err)
			}
			block, mode = &pem.Block{Type: "PRIVATE KEY", Bytes: der}, 0o600
		}

		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
		if err := os.WriteFile(f.path, pem.EncodeToMemory(block), mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}
	return nil
}

func loadKeyPair(privatePath, publicPath string) (KeyPair, error) {
	priv, err := readPrivateKey(privatePath)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := readPublicKey(publicPath)
	if err != nil {
		return KeyPair{}, err
	}
	if !priv.PublicKey.Equal(pub) {
		return KeyPair{}, fmt.Errorf("%w: %s does not match %s", ErrInvalidKey, publicPath, privatePath)
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %s is not PEM encoded", ErrInvalidKey, path)
	}
	return block, nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an RSA key", ErrInvalidKey, path)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q in %s", ErrInvalidKey, block.Type, path)
	}
}

func readPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an RSA key", ErrInvalidKey, path)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q in %s", ErrInvalidKey, block.Type, path)
	}
}
