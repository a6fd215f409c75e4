// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned for keys that cannot be parsed as secp256k1 keys.
var ErrInvalidKey = errors.New("invalid private key")

// Account is an EVM account derived once from its signing key. The key never
// leaves the process; only signatures and signed transactions do.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// NewAccount parses a hex private key, with or without 0x prefix.
func NewAccount(hexKey string) (*Account, error) {
	h := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Account{
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// SignMessage produces an EIP-191 personal_sign signature, hex encoded with
// the recovery id in the 27/28 form the partner API expects.
func (a *Account) SignMessage(message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), a.key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SignTx signs tx for the given signer.
func (a *Account) SignTx(tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	return types.SignTx(tx, signer, a.key)
}

// String returns the checksummed address.
func (a *Account) String() string {
	return a.Address.Hex()
}

// LoadKeys reads a flat list of private keys, one per line. Blank lines and
// lines starting with # are skipped.
func LoadKeys(path string) ([]string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys found in %s", path)
	}
	return keys, nil
}
