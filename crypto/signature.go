package crypto

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
)

const (
	// PubKeySize is the size of a compressed Baby Jubjub public key.
	PubKeySize = 32
	// SignatureSize is the size of a compressed EdDSA signature.
	SignatureSize = 64
)

// SigningKey is the Baby Jubjub EdDSA key owning payment network slots.
type SigningKey struct {
	key babyjub.PrivateKey
}

// NewSigningKey generates a random signing key.
func NewSigningKey() *SigningKey {
	return &SigningKey{key: babyjub.NewRandPrivKey()}
}

// PubKey returns the compressed public key.
func (k *SigningKey) PubKey() []byte {
	comp := k.key.Public().Compress()
	return comp[:]
}

// Sign signs the message derived from nonce and fingerprint.
func (k *SigningKey) Sign(nonce uint64, fingerprint *big.Int) ([]byte, error) {
	msg, err := SignatureMessage(nonce, fingerprint)
	if err != nil {
		return nil, err
	}
	sig := k.key.SignPoseidon(msg).Compress()
	return sig[:], nil
}

// SignatureMessage returns the Poseidon hash of (nonce, fingerprint), which
// is the message signed by slot owners.
func SignatureMessage(nonce uint64, fingerprint *big.Int) (*big.Int, error) {
	msg, err := HashFields(new(big.Int).SetUint64(nonce), fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to hash signature message: %w", err)
	}
	return msg, nil
}

// DecompressPubKey returns the curve point of a compressed public key.
func DecompressPubKey(pubKey []byte) (*babyjub.PublicKey, error) {
	if len(pubKey) != PubKeySize {
		return nil, fmt.Errorf("invalid public key size %d", len(pubKey))
	}
	var comp babyjub.PublicKeyComp
	copy(comp[:], pubKey)
	return comp.Decompress()
}

// VerifySignature reports whether sig is a valid signature of (nonce,
// fingerprint) under pubKey. Malformed keys or signatures are invalid.
func VerifySignature(pubKey, sig []byte, nonce uint64, fingerprint *big.Int) bool {
	pk, err := DecompressPubKey(pubKey)
	if err != nil {
		return false
	}
	if len(sig) != SignatureSize {
		return false
	}
	var comp babyjub.SignatureComp
	copy(comp[:], sig)
	signature, err := comp.Decompress()
	if err != nil {
		return false
	}
	msg, err := SignatureMessage(nonce, fingerprint)
	if err != nil {
		return false
	}
	return pk.VerifyPoseidon(msg, signature)
}
