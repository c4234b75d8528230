package encryption

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const adminCredentialsFile = "admin_credentials.json"

var ErrInvalidReceipt = errors.New("encryption: invalid receipt")

// AdminCredentials is the on-disk form of the election authority key
type AdminCredentials struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// CryptoService signs ledger digests with the election authority key so a
// voter can later prove their vote was sealed.
type CryptoService struct {
	adminKey *ecdsa.PrivateKey
}

func NewCryptoService(adminKey *ecdsa.PrivateKey) (*CryptoService, error) {
	if adminKey == nil {
		return nil, errors.New("admin key is required")
	}
	return &CryptoService{adminKey: adminKey}, nil
}

// NewEphemeralCryptoService uses a fresh key that is never written to disk
func NewEphemeralCryptoService() (*CryptoService, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate admin key: %w", err)
	}
	return NewCryptoService(key)
}

// LoadOrGenerateAdminKey restores the admin key from dir, creating and
// persisting a new one on first start.
func LoadOrGenerateAdminKey(dir string) (*ecdsa.PrivateKey, error) {
	adminKeyPath := filepath.Join(dir, adminCredentialsFile)

	if data, err := os.ReadFile(adminKeyPath); err == nil {
		var creds AdminCredentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse admin credentials: %w", err)
		}

		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to restore admin private key: %w", err)
		}
		return privateKey, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read admin credentials: %w", err)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate admin key: %w", err)
	}

	creds := AdminCredentials{
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&privateKey.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(privateKey)),
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal admin credentials: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(adminKeyPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save admin credentials: %w", err)
	}

	return privateKey, nil
}

// Address is the Ethereum-style address of the admin key
func (cs *CryptoService) Address() string {
	return crypto.PubkeyToAddress(cs.adminKey.PublicKey).Hex()
}

// PublicKey returns the uncompressed admin public key as 0x-prefixed hex
func (cs *CryptoService) PublicKey() string {
	return hexutil.Encode(crypto.FromECDSAPub(&cs.adminKey.PublicKey))
}

// SignDigest returns a receipt for a sealed ledger digest
func (cs *CryptoService) SignDigest(digest string) (string, error) {
	sig, err := crypto.Sign(receiptHash(digest), cs.adminKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign digest: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// VerifyReceipt reports whether receipt was produced by this service's key
// for digest.
func (cs *CryptoService) VerifyReceipt(digest, receipt string) bool {
	signer, err := RecoverSigner(digest, receipt)
	if err != nil {
		return false
	}
	return signer == crypto.PubkeyToAddress(cs.adminKey.PublicKey)
}

// RecoverSigner returns the address that signed digest
func RecoverSigner(digest, receipt string) (common.Address, error) {
	sig, err := hexutil.Decode(receipt)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", ErrInvalidReceipt, len(sig))
	}

	pub, err := crypto.SigToPub(receiptHash(digest), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func receiptHash(digest string) []byte {
	return crypto.Keccak256([]byte(digest))
}
