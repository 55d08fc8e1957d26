package prover

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/mpn-executor/circuits/transition"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/types"
)

var (
	// ErrInvalidParams is returned when a parameters blob cannot be decoded.
	ErrInvalidParams = errors.New("invalid proving parameters")
	// ErrParamsMismatch is returned when the parameters were generated for
	// another kind or other sizes.
	ErrParamsMismatch = errors.New("proving parameters mismatch")
)

// Params holds everything needed to prove and verify batches of one kind:
// the compiled circuit and its Groth16 keys.
type Params struct {
	Kind  types.Kind
	Sizes config.Sizes
	CCS   constraint.ConstraintSystem
	PK    groth16.ProvingKey
	VK    groth16.VerifyingKey
}

// paramsBlob is the on-disk encoding of Params.
type paramsBlob struct {
	Kind  types.Kind   `cbor:"0,keyasint"`
	Sizes config.Sizes `cbor:"1,keyasint"`
	CCS   []byte       `cbor:"2,keyasint"`
	PK    []byte       `cbor:"3,keyasint"`
	VK    []byte       `cbor:"4,keyasint"`
}

// Setup compiles the circuit of the kind for the given sizes and runs the
// Groth16 setup. It is slow and meant to run once, offline.
func Setup(kind types.Kind, sizes config.Sizes) (*Params, error) {
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder,
		transition.CircuitPlaceholder(kind, sizes))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s circuit: %w", kind, err)
	}
	log.Debugw("circuit compiled", "kind", kind.String(), "constraints", ccs.GetNbConstraints())
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("failed to setup %s circuit: %w", kind, err)
	}
	return &Params{Kind: kind, Sizes: sizes, CCS: ccs, PK: pk, VK: vk}, nil
}

// Marshal encodes the parameters into an opaque blob.
func (p *Params) Marshal() ([]byte, error) {
	blob := paramsBlob{Kind: p.Kind, Sizes: p.Sizes}
	var err error
	if blob.CCS, err = serialize(p.CCS); err != nil {
		return nil, fmt.Errorf("failed to encode constraint system: %w", err)
	}
	if blob.PK, err = serialize(p.PK); err != nil {
		return nil, fmt.Errorf("failed to encode proving key: %w", err)
	}
	if blob.VK, err = serialize(p.VK); err != nil {
		return nil, fmt.Errorf("failed to encode verifying key: %w", err)
	}
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(blob)
}

// Unmarshal decodes a blob produced by Marshal.
func Unmarshal(data []byte) (*Params, error) {
	blob := paramsBlob{}
	if err := cbor.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	p := &Params{
		Kind:  blob.Kind,
		Sizes: blob.Sizes,
		CCS:   groth16.NewCS(ecc.BN254),
		PK:    groth16.NewProvingKey(ecc.BN254),
		VK:    groth16.NewVerifyingKey(ecc.BN254),
	}
	if _, err := p.CCS.ReadFrom(bytes.NewReader(blob.CCS)); err != nil {
		return nil, fmt.Errorf("%w: constraint system: %v", ErrInvalidParams, err)
	}
	if _, err := p.PK.ReadFrom(bytes.NewReader(blob.PK)); err != nil {
		return nil, fmt.Errorf("%w: proving key: %v", ErrInvalidParams, err)
	}
	if _, err := p.VK.ReadFrom(bytes.NewReader(blob.VK)); err != nil {
		return nil, fmt.Errorf("%w: verifying key: %v", ErrInvalidParams, err)
	}
	return p, nil
}

// Check returns ErrParamsMismatch unless the parameters were generated for
// the kind and sizes.
func (p *Params) Check(kind types.Kind, sizes config.Sizes) error {
	if p.Kind != kind {
		return fmt.Errorf("%w: expected %s parameters, got %s", ErrParamsMismatch, kind, p.Kind)
	}
	if p.Sizes != sizes {
		return fmt.Errorf("%w: expected sizes %+v, got %+v", ErrParamsMismatch, sizes, p.Sizes)
	}
	return nil
}

// VKFingerprint returns the hex encoded sha256 of the canonical verifying
// key serialization. It identifies the key committed on chain.
func (p *Params) VKFingerprint() (string, error) {
	b, err := serialize(p.VK)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func serialize(w io.WriterTo) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
