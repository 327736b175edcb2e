package engine

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// TransactionKind names what a transaction does.
type TransactionKind string

const (
	KindTransferGas TransactionKind = "transfer_gas"
)

// TransactionData is the unsigned body of a transaction.
type TransactionData struct {
	Kind       TransactionKind `json:"kind"`
	Sender     Address         `json:"sender"`
	Recipient  Address         `json:"recipient"`
	Amount     uint64          `json:"amount"`
	GasPayment ObjectRef       `json:"gas_payment"`
	GasBudget  uint64          `json:"gas_budget"`
	GasPrice   uint64          `json:"gas_price"`
}

// Marshal returns the canonical bytes that are signed and hashed.
func (d *TransactionData) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Digest is the transaction digest over the canonical bytes.
func (d *TransactionData) Digest() (Digest, error) {
	b, err := d.Marshal()
	if err != nil {
		return Digest{}, err
	}
	return hashParts("TransactionData::", b), nil
}

// UnmarshalTransactionData decodes canonical transaction bytes.
func UnmarshalTransactionData(b []byte) (*TransactionData, error) {
	var d TransactionData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode transaction data: %w", err)
	}
	return &d, nil
}

// SignatureLength is the byte length of a user signature: the ed25519
// signature followed by the signer's public key.
const SignatureLength = ed25519.SignatureSize + ed25519.PublicKeySize

// Transaction is signed transaction data.
type Transaction struct {
	Data       TransactionData `json:"data"`
	Signatures [][]byte        `json:"signatures"`
	digest     Digest
}

// Digest returns the digest cached at signing or decode time.
func (t *Transaction) Digest() Digest { return t.digest }

// SignTransaction signs data with key and returns the ready transaction.
func SignTransaction(data TransactionData, key ed25519.PrivateKey) (*Transaction, error) {
	digest, err := data.Digest()
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(key, digest[:])
	pub := key.Public().(ed25519.PublicKey)
	return &Transaction{
		Data:       data,
		Signatures: [][]byte{append(sig, pub...)},
		digest:     digest,
	}, nil
}

// DecodeTransaction builds a transaction from base64 bytes and signatures,
// the form accepted over the wire.
func DecodeTransaction(txBytes string, signatures []string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(txBytes)
	if err != nil {
		return nil, fmt.Errorf("decode tx_bytes: %w", err)
	}
	data, err := UnmarshalTransactionData(raw)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Data: *data, digest: hashParts("TransactionData::", raw)}
	for i, s := range signatures {
		sig, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode signature %d: %w", i, err)
		}
		tx.Signatures = append(tx.Signatures, sig)
	}
	return tx, nil
}

// Encode returns the wire form accepted by DecodeTransaction.
func (t *Transaction) Encode() (string, []string, error) {
	raw, err := t.Data.Marshal()
	if err != nil {
		return "", nil, err
	}
	sigs := make([]string, len(t.Signatures))
	for i, s := range t.Signatures {
		sigs[i] = base64.StdEncoding.EncodeToString(s)
	}
	return base64.StdEncoding.EncodeToString(raw), sigs, nil
}

// verifySignatures checks that one signature covers the digest and
// belongs to the sender.
func (t *Transaction) verifySignatures() error {
	if len(t.Signatures) == 0 {
		return fmt.Errorf("%w: no signatures", ErrInvalidSignature)
	}
	for _, sig := range t.Signatures {
		if len(sig) != SignatureLength {
			continue
		}
		pub := ed25519.PublicKey(sig[ed25519.SignatureSize:])
		if AddressFromPublicKey(pub) != t.Data.Sender {
			continue
		}
		if ed25519.Verify(pub, t.digest[:], sig[:ed25519.SignatureSize]) {
			return nil
		}
	}
	return fmt.Errorf("%w: no valid signature from sender %s", ErrInvalidSignature, t.Data.Sender)
}

// ExecutionStatus is the outcome recorded in effects.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
)

// TransactionEffects records what executing a transaction changed.
type TransactionEffects struct {
	TransactionDigest Digest          `json:"transaction_digest"`
	Status            ExecutionStatus `json:"status"`
	ExecutedEpoch     uint64          `json:"executed_epoch"`
	GasUsed           GasCostSummary  `json:"gas_used"`
	GasObject         ObjectRef       `json:"gas_object"`
	Created           []ObjectRef     `json:"created"`
	Mutated           []ObjectRef     `json:"mutated"`
	Dependencies      []Digest        `json:"dependencies"`
}

// Digest hashes the canonical encoding of the effects.
func (e *TransactionEffects) Digest() Digest {
	b, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	return hashParts("TransactionEffects::", b)
}

var errNilTransaction = errors.New("nil transaction")
