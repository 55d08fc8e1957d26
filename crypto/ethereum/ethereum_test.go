package ethereum

import (
	"encoding/hex"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSignKeysGeneration(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)

	pub, priv := s.HexString()
	c.Assert(pub, qt.Not(qt.Equals), "")
	c.Assert(priv, qt.Not(qt.Equals), "")

	// Test key import
	imported := NewSignKeys()
	c.Assert(imported.AddHexKey(priv), qt.IsNil)

	importedPub, importedPriv := imported.HexString()
	c.Assert(importedPub, qt.Equals, pub)
	c.Assert(importedPriv, qt.Equals, priv)
}

func TestEthereumSigning(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	// Test vector with known private key and expected signature
	testVector := struct {
		privKey           string
		message           []byte
		expectedSignature string
	}{
		privKey:           "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19",
		message:           []byte("hello"),
		expectedSignature: "a0d0ebc374d2a4d6357eaca3da2f5f3ff547c3560008206bc234f9032a866ace6279ffb4093fb39c8bbc39021f6a5c36ef0e813c8c94f325a53f4f395a5c82de01",
	}

	// Create signing keys from known private key
	s := NewSignKeys()
	c.Assert(s.AddHexKey(testVector.privKey), qt.IsNil)

	// Verify private key was imported correctly
	_, priv := s.HexString()
	c.Assert(priv, qt.Equals, testVector.privKey)

	// Sign message and verify signature matches expected
	signature, err := s.SignEthereum(testVector.message)
	c.Assert(err, qt.IsNil)

	expectedSig, err := hex.DecodeString(testVector.expectedSignature)
	c.Assert(err, qt.IsNil)
	c.Assert(signature, qt.DeepEquals, expectedSig)
}

func TestAddressRecovery(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)
	expectedAddr, err := AddrFromPublicKey(s.PublicKey())
	c.Assert(err, qt.IsNil)
	c.Assert(expectedAddr.String(), qt.Equals, s.AddressString())

	// keys imported with the 0x prefix are the same keys
	_, priv := s.HexString()
	prefixed := NewSignKeys()
	c.Assert(prefixed.AddHexKey("0x"+priv), qt.IsNil)
	c.Assert(prefixed.AddressString(), qt.Equals, s.AddressString())

	for _, msg := range [][]byte{[]byte("update transaction"), HashRaw([]byte("signing hash"))} {
		signature, err := s.SignEthereum(msg)
		c.Assert(err, qt.IsNil)
		c.Assert(signature, qt.HasLen, SignatureLength)

		recoveredAddr, err := AddrFromSignature(msg, signature)
		c.Assert(err, qt.IsNil)
		c.Assert(recoveredAddr, qt.Equals, expectedAddr)

		// a different message recovers another address
		otherAddr, err := AddrFromSignature(append([]byte{0}, msg...), signature)
		if err == nil {
			c.Assert(otherAddr, qt.Not(qt.Equals), expectedAddr)
		}
	}

	_, err = AddrFromSignature([]byte("msg"), []byte{1, 2, 3})
	c.Assert(err, qt.IsNotNil)
}

func TestSeedDerivation(t *testing.T) {
	c := qt.New(t)

	a, b := NewSignKeys(), NewSignKeys()
	c.Assert(a.AddSeed([]byte("executor seed")), qt.IsNil)
	c.Assert(b.AddSeed([]byte("executor seed")), qt.IsNil)
	c.Assert(a.AddressString(), qt.Equals, b.AddressString())

	other := NewSignKeys()
	c.Assert(other.AddSeed([]byte("another seed")), qt.IsNil)
	c.Assert(other.AddressString(), qt.Not(qt.Equals), a.AddressString())
}
