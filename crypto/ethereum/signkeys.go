// Package ethereum holds the secp256k1 keys the executor uses to sign its
// aggregate host chain transaction.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of a recoverable signature.
	SignatureLength = ethcrypto.SignatureLength
	// signingPrefix is the EIP-191 personal message prefix.
	signingPrefix = "\x19Ethereum Signed Message:\n"
)

// SignKeys holds a secp256k1 key pair.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys returns an empty SignKeys.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a new random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a hex encoded private key.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddSeed derives the private key as keccak256(seed).
func (k *SignKeys) AddSeed(seed []byte) error {
	key, err := ethcrypto.ToECDSA(ethcrypto.Keccak256(seed))
	if err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the compressed public key and the private key, hex
// encoded without prefix.
func (k *SignKeys) HexString() (string, string) {
	return hex.EncodeToString(k.PublicKey()), hex.EncodeToString(ethcrypto.FromECDSA(&k.Private))
}

// PublicKey returns the compressed public key.
func (k *SignKeys) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum style address of the key pair.
func (k *SignKeys) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

func (k *SignKeys) AddressString() string {
	return k.Address().String()
}

// SignEthereum signs the EIP-191 hash of message. The recovery id is 0 or 1.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	return ethcrypto.Sign(Hash(message), &k.Private)
}

// Hash returns the keccak256 hash of the EIP-191 prefixed message.
func Hash(message []byte) []byte {
	return HashRaw([]byte(signingPrefix + strconv.Itoa(len(message)) + string(message)))
}

// HashRaw returns the keccak256 hash of data.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

// AddrFromPublicKey returns the address of a compressed or uncompressed
// public key.
func AddrFromPublicKey(pub []byte) (common.Address, error) {
	var (
		key *ecdsa.PublicKey
		err error
	)
	if len(pub) == 33 {
		key, err = ethcrypto.DecompressPubkey(pub)
	} else {
		key, err = ethcrypto.UnmarshalPubkey(pub)
	}
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*key), nil
}

// AddrFromSignature recovers the signer address of a SignEthereum signature.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	pub, err := ethcrypto.SigToPub(Hash(message), signature)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
