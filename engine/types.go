package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Common errors for ledger operations
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrObjectNotFound      = errors.New("object not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCommitteeNotFound   = errors.New("committee not found")
	ErrInsufficientGas     = errors.New("insufficient gas")
	ErrInvalidSignature    = errors.New("invalid transaction signature")
	ErrInvalidDuration     = errors.New("clock cannot move backwards")
	ErrInvalidHex          = errors.New("invalid hex value")
)

// AddressLength is the byte length of addresses, object IDs and digests.
const AddressLength = 32

// Address identifies an account on the simulated ledger.
type Address [AddressLength]byte

// ObjectID identifies an object independently of its version.
type ObjectID [AddressLength]byte

// Digest is a sha256 content hash.
type Digest [AddressLength]byte

// ZeroAddress is the all-zero address.
var ZeroAddress Address

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// MarshalText encodes the address as 0x-prefixed hex.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText accepts hex with or without the 0x prefix.
func (a *Address) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), a[:])
}

// ParseAddress decodes a hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	err := a.UnmarshalText([]byte(s))
	return a, err
}

func (id ObjectID) String() string { return "0x" + hex.EncodeToString(id[:]) }

func (id ObjectID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ObjectID) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), id[:])
}

// ParseObjectID decodes a hex object ID.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), d[:])
}

// ParseDigest decodes a hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

func decodeFixedHex(s string, dst []byte) error {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidHex, hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return nil
}

// hashParts returns sha256 over a domain tag followed by every part.
func hashParts(tag string, parts ...[]byte) Digest {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ObjectRef pins an object at a specific version.
type ObjectRef struct {
	ObjectID ObjectID `json:"object_id"`
	Version  uint64   `json:"version"`
	Digest   Digest   `json:"digest"`
}

// Object is a versioned gas coin owned by a single address.
type Object struct {
	ObjectID            ObjectID `json:"object_id"`
	Version             uint64   `json:"version"`
	Digest              Digest   `json:"digest"`
	Owner               Address  `json:"owner"`
	Balance             uint64   `json:"balance"`
	PreviousTransaction Digest   `json:"previous_transaction"`
	StorageRebate       uint64   `json:"storage_rebate"`
}

// Ref returns the object's reference.
func (o *Object) Ref() ObjectRef {
	return ObjectRef{ObjectID: o.ObjectID, Version: o.Version, Digest: o.Digest}
}

func (o *Object) computeDigest() Digest {
	var buf [8 + 8 + 8]byte
	binary.BigEndian.PutUint64(buf[0:], o.Version)
	binary.BigEndian.PutUint64(buf[8:], o.Balance)
	binary.BigEndian.PutUint64(buf[16:], o.StorageRebate)
	return hashParts("Object::", o.ObjectID[:], o.Owner[:], buf[:], o.PreviousTransaction[:])
}

// GasCostSummary mirrors the rolling gas accounting carried by checkpoints.
type GasCostSummary struct {
	ComputationCost         uint64 `json:"computationCost"`
	ComputationCostBurned   uint64 `json:"computationCostBurned"`
	StorageCost             uint64 `json:"storageCost"`
	StorageRebate           uint64 `json:"storageRebate"`
	NonRefundableStorageFee uint64 `json:"nonRefundableStorageFee"`
}

// NetGasUsage is computation plus storage minus rebate.
func (g GasCostSummary) NetGasUsage() int64 {
	return int64(g.ComputationCost+g.StorageCost) - int64(g.StorageRebate)
}

func (g *GasCostSummary) add(o GasCostSummary) {
	g.ComputationCost += o.ComputationCost
	g.ComputationCostBurned += o.ComputationCostBurned
	g.StorageCost += o.StorageCost
	g.StorageRebate += o.StorageRebate
	g.NonRefundableStorageFee += o.NonRefundableStorageFee
}
