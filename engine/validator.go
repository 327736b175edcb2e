package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// maxGasPrice keeps computation plus storage cost within int64 gas summaries.
const maxGasPrice = (math.MaxInt64 - 2*storageUnitCost) / computationUnits

// ValidationRule checks a transaction against the live object set.
type ValidationRule func(tx *Transaction, objects *objectStore) error

// Certification is the outcome of validating one transaction.
type Certification struct {
	Digest Digest
	Valid  bool
	Errors []string
}

// Err folds the certification errors into one error, nil when valid.
func (c *Certification) Err() error {
	if c.Valid {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidTransaction, c.Errors)
}

// ErrInvalidTransaction wraps every rule failure.
var ErrInvalidTransaction = errors.New("invalid transaction")

// TransactionCertifier validates transactions before execution.
type TransactionCertifier struct {
	rules []ValidationRule
	mu    sync.RWMutex
}

// NewTransactionCertifier creates a certifier with the default rule set.
func NewTransactionCertifier(referenceGasPrice uint64) *TransactionCertifier {
	c := &TransactionCertifier{}
	c.AddRule(requireSignature)
	c.AddRule(requireTransferShape)
	c.AddRule(requireGasPrice(referenceGasPrice))
	c.AddRule(requireLiveGasPayment)
	return c
}

// AddRule registers a validation rule.
func (c *TransactionCertifier) AddRule(rule ValidationRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule)
}

// Validate runs every rule and collects all failures.
func (c *TransactionCertifier) Validate(tx *Transaction, objects *objectStore) *Certification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cert := &Certification{Digest: tx.Digest(), Valid: true}
	for _, rule := range c.rules {
		if err := rule(tx, objects); err != nil {
			cert.Valid = false
			cert.Errors = append(cert.Errors, err.Error())
		}
	}
	return cert
}

func requireSignature(tx *Transaction, _ *objectStore) error {
	return tx.verifySignatures()
}

func requireTransferShape(tx *Transaction, _ *objectStore) error {
	d := &tx.Data
	if d.Kind != KindTransferGas {
		return fmt.Errorf("unsupported transaction kind %q", d.Kind)
	}
	if d.Sender.IsZero() {
		return errors.New("sender is required")
	}
	if d.Recipient.IsZero() {
		return errors.New("recipient is required")
	}
	if d.Recipient == d.Sender {
		return errors.New("recipient must differ from sender")
	}
	if d.Amount == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func requireGasPrice(reference uint64) ValidationRule {
	return func(tx *Transaction, _ *objectStore) error {
		if tx.Data.GasPrice < reference {
			return fmt.Errorf("gas price %d below reference %d", tx.Data.GasPrice, reference)
		}
		if tx.Data.GasPrice > maxGasPrice {
			return fmt.Errorf("gas price %d above maximum %d", tx.Data.GasPrice, uint64(maxGasPrice))
		}
		if tx.Data.GasBudget < tx.Data.GasPrice*computationUnits {
			return fmt.Errorf("gas budget %d below minimum %d", tx.Data.GasBudget, tx.Data.GasPrice*computationUnits)
		}
		return nil
	}
}

func requireLiveGasPayment(tx *Transaction, objects *objectStore) error {
	ref := tx.Data.GasPayment
	obj, ok := objects.live(ref.ObjectID)
	if !ok {
		return fmt.Errorf("gas object %s: %v", ref.ObjectID, ErrObjectNotFound)
	}
	if obj.Version != ref.Version || obj.Digest != ref.Digest {
		return fmt.Errorf("gas object %s is at version %d, transaction references %d", ref.ObjectID, obj.Version, ref.Version)
	}
	if obj.Owner != tx.Data.Sender {
		return fmt.Errorf("gas object %s is not owned by sender", ref.ObjectID)
	}
	if tx.Data.Amount > obj.Balance || tx.Data.GasBudget > obj.Balance-tx.Data.Amount {
		return fmt.Errorf("%v: balance %d cannot cover amount %d plus budget %d",
			ErrInsufficientGas, obj.Balance, tx.Data.Amount, tx.Data.GasBudget)
	}
	return nil
}
