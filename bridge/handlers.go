package bridge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simulator/arrow"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// Method names served by the default registry.
const (
	MethodGetLatestCheckpoint           = "getLatestCheckpoint"
	MethodGetHighestVerifiedCheckpoint  = "getHighestVerifiedCheckpoint"
	MethodGetCheckpointBySequenceNumber = "getCheckpointBySequenceNumber"
	MethodGetCheckpoints                = "getCheckpoints"
	MethodExportCheckpoints             = "exportCheckpoints"
	MethodGetTransaction                = "getTransaction"
	MethodGetObject                     = "getObject"
	MethodGetBalance                    = "getBalance"
	MethodGetCommittee                  = "getCommittee"
	MethodGetChainIdentifier            = "getChainIdentifier"
	MethodGetLedgerInfo                 = "getLedgerInfo"
	MethodExecuteTransaction            = "executeTransaction"
	MethodCreateCheckpoint              = "createCheckpoint"
	MethodAdvanceEpoch                  = "advanceEpoch"
	MethodAdvanceClock                  = "advanceClock"
	MethodRequestGas                    = "requestGas"
)

// faucetClockAdvance is how far the clock moves after each faucet request.
const faucetClockAdvance = 5 * time.Second

// maxClockAdvanceMs is the largest advanceClock duration a time.Duration holds.
const maxClockAdvanceMs = math.MaxInt64 / int64(time.Millisecond)

// maxExportCheckpoints caps one exportCheckpoints call.
const maxExportCheckpoints = 1000

func registerHandlers(r *Registry) {
	r.Register(MethodGetLatestCheckpoint, getLatestCheckpoint)
	r.Register(MethodGetHighestVerifiedCheckpoint, getHighestVerifiedCheckpoint)
	r.Register(MethodGetCheckpointBySequenceNumber, getCheckpointBySequenceNumber)
	r.Register(MethodGetCheckpoints, getCheckpoints)
	r.Register(MethodExportCheckpoints, exportCheckpoints)
	r.Register(MethodGetTransaction, getTransaction)
	r.Register(MethodGetObject, getObject)
	r.Register(MethodGetBalance, getBalance)
	r.Register(MethodGetCommittee, getCommittee)
	r.Register(MethodGetChainIdentifier, getChainIdentifier)
	r.Register(MethodGetLedgerInfo, getLedgerInfo)

	r.Register(MethodExecuteTransaction, executeTransaction)
	r.Register(MethodCreateCheckpoint, createCheckpoint)
	r.Register(MethodAdvanceEpoch, advanceEpoch)
	r.Register(MethodAdvanceClock, advanceClock)
	r.Register(MethodRequestGas, requestGas)
}

func decodeArgs[T any](method string, args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, invalidArgs(method, err)
	}
	return v, nil
}

func missingArg(method, field string) error {
	return invalidArgs(method, errors.New("missing field `"+field+"`"))
}

// invalidArgs builds the handler error for undecodable arguments. It
// matches ErrInvalidArgs under errors.Is.
func invalidArgs(method string, cause error) *HandlerError {
	return &HandlerError{
		Method:  method,
		Message: "invalid args for " + method + ": " + cause.Error(),
		Err:     errors.Join(ErrInvalidArgs, cause),
	}
}

func getLatestCheckpoint(s *State, _ json.RawMessage) (Result, error) {
	return s.Read(MethodGetLatestCheckpoint, func(l Ledger) (Result, error) {
		cp, err := l.LatestCheckpoint()
		if err != nil {
			return nil, newHandlerError(MethodGetLatestCheckpoint, "Failed to get latest checkpoint", err)
		}
		return ResultOf(cp), nil
	})
}

func getHighestVerifiedCheckpoint(s *State, _ json.RawMessage) (Result, error) {
	return s.Read(MethodGetHighestVerifiedCheckpoint, func(l Ledger) (Result, error) {
		cp, err := l.HighestVerifiedCheckpoint()
		if err != nil {
			return nil, newHandlerError(MethodGetHighestVerifiedCheckpoint, "Failed to get highest verified checkpoint", err)
		}
		return ResultOf(cp), nil
	})
}

type sequenceArgs struct {
	SequenceNumber *uint64 `json:"sequence_number"`
}

func getCheckpointBySequenceNumber(s *State, args json.RawMessage) (Result, error) {
	const method = MethodGetCheckpointBySequenceNumber
	a, err := decodeArgs[sequenceArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.SequenceNumber == nil {
		return nil, missingArg(method, "sequence_number")
	}
	seq := *a.SequenceNumber

	return s.Read(method, func(l Ledger) (Result, error) {
		if cp, ok := s.checkpoints.Get(seq); ok {
			return ResultOf(cp), nil
		}
		cp, err := l.CheckpointBySequenceNumber(seq)
		if err != nil {
			return nil, newHandlerError(method, "Failed to get checkpoint", err)
		}
		s.checkpoints.Add(seq, cp)
		return ResultOf(cp), nil
	})
}

type pageArgs struct {
	Cursor     *uint64 `json:"cursor"`
	Limit      int     `json:"limit"`
	Descending bool    `json:"descending"`
}

func getCheckpoints(s *State, args json.RawMessage) (Result, error) {
	a, err := decodeArgs[pageArgs](MethodGetCheckpoints, args)
	if err != nil {
		return nil, err
	}
	return s.Read(MethodGetCheckpoints, func(l Ledger) (Result, error) {
		return ResultOf(l.Checkpoints(a.Cursor, a.Limit, a.Descending)), nil
	})
}

type exportArgs struct {
	Start uint64 `json:"start"`
	Limit int    `json:"limit"`
}

// CheckpointExport is the exportCheckpoints result.
type CheckpointExport struct {
	Format    string  `json:"format"`
	Start     uint64  `json:"start"`
	Count     int     `json:"count"`
	NextStart *uint64 `json:"next_start"`
	IPC       string  `json:"ipc"`
}

func exportCheckpoints(s *State, args json.RawMessage) (Result, error) {
	const method = MethodExportCheckpoints
	a, err := decodeArgs[exportArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.Limit <= 0 || a.Limit > maxExportCheckpoints {
		a.Limit = maxExportCheckpoints
	}

	return s.Read(method, func(l Ledger) (Result, error) {
		rows := make([]arrow.CheckpointRow, 0, min(a.Limit, 256))
		seq := a.Start
		for ; len(rows) < a.Limit; seq++ {
			cp, err := l.CheckpointBySequenceNumber(seq)
			if errors.Is(err, engine.ErrCheckpointNotFound) {
				break
			}
			if err != nil {
				return nil, newHandlerError(method, "Failed to get checkpoint", err)
			}
			contents, err := l.CheckpointContents(seq)
			if err != nil {
				return nil, newHandlerError(method, "Failed to get checkpoint contents", err)
			}
			rows = append(rows, arrow.RowFromCheckpoint(cp, contents))
		}

		data, err := arrow.EncodeCheckpoints(rows)
		if err != nil {
			return nil, newHandlerError(method, "Failed to encode checkpoints", err)
		}
		out := CheckpointExport{
			Format: arrow.StreamFormat,
			Start:  a.Start,
			Count:  len(rows),
			IPC:    base64.StdEncoding.EncodeToString(data),
		}
		if _, err := l.CheckpointBySequenceNumber(seq); err == nil {
			out.NextStart = &seq
		}
		return ResultOf(out), nil
	})
}

type digestArgs struct {
	Digest *engine.Digest `json:"digest"`
}

// TransactionResult is the getTransaction result.
type TransactionResult struct {
	Digest     engine.Digest              `json:"digest"`
	TxBytes    string                     `json:"tx_bytes"`
	Signatures []string                   `json:"signatures"`
	Effects    *engine.TransactionEffects `json:"effects"`
	Checkpoint *uint64                    `json:"checkpoint"`
}

func getTransaction(s *State, args json.RawMessage) (Result, error) {
	const method = MethodGetTransaction
	a, err := decodeArgs[digestArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.Digest == nil {
		return nil, missingArg(method, "digest")
	}

	return s.Read(method, func(l Ledger) (Result, error) {
		tx, effects, err := l.Transaction(*a.Digest)
		if err != nil {
			return nil, newHandlerError(method, "Failed to get transaction", err)
		}
		txBytes, sigs, err := tx.Encode()
		if err != nil {
			return nil, newHandlerError(method, "Failed to encode transaction", err)
		}
		out := TransactionResult{
			Digest:     tx.Digest(),
			TxBytes:    txBytes,
			Signatures: sigs,
			Effects:    effects,
		}
		if seq, ok := l.TransactionCheckpoint(*a.Digest); ok {
			out.Checkpoint = &seq
		}
		return ResultOf(out), nil
	})
}

type objectArgs struct {
	ObjectID *engine.ObjectID `json:"object_id"`
	Version  *uint64          `json:"version"`
}

func getObject(s *State, args json.RawMessage) (Result, error) {
	const method = MethodGetObject
	a, err := decodeArgs[objectArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.ObjectID == nil {
		return nil, missingArg(method, "object_id")
	}

	return s.Read(method, func(l Ledger) (Result, error) {
		var (
			obj *engine.Object
			err error
		)
		if a.Version != nil {
			obj, err = l.ObjectByKey(*a.ObjectID, *a.Version)
		} else {
			obj, err = l.Object(*a.ObjectID)
		}
		if err != nil {
			return nil, newHandlerError(method, "Failed to get object", err)
		}
		return ResultOf(obj), nil
	})
}

type ownerArgs struct {
	Owner *engine.Address `json:"owner"`
}

// BalanceResult is the getBalance result.
type BalanceResult struct {
	Owner        engine.Address  `json:"owner"`
	Balance      uint64          `json:"balance"`
	CoinObjectID engine.ObjectID `json:"coin_object_id"`
}

func getBalance(s *State, args json.RawMessage) (Result, error) {
	const method = MethodGetBalance
	a, err := decodeArgs[ownerArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.Owner == nil {
		return nil, missingArg(method, "owner")
	}

	return s.Read(method, func(l Ledger) (Result, error) {
		balance, coin, err := l.Balance(*a.Owner)
		if err != nil {
			return nil, newHandlerError(method, "Failed to get balance", err)
		}
		return ResultOf(BalanceResult{Owner: *a.Owner, Balance: balance, CoinObjectID: coin}), nil
	})
}

type epochArgs struct {
	Epoch *uint64 `json:"epoch"`
}

func getCommittee(s *State, args json.RawMessage) (Result, error) {
	const method = MethodGetCommittee
	a, err := decodeArgs[epochArgs](method, args)
	if err != nil {
		return nil, err
	}

	return s.Read(method, func(l Ledger) (Result, error) {
		epoch := l.Epoch()
		if a.Epoch != nil {
			epoch = *a.Epoch
		}
		c, err := l.Committee(epoch)
		if err != nil {
			return nil, newHandlerError(method, "Failed to get committee", err)
		}
		return ResultOf(c), nil
	})
}

func getChainIdentifier(s *State, _ json.RawMessage) (Result, error) {
	return s.Read(MethodGetChainIdentifier, func(l Ledger) (Result, error) {
		return ResultOf(map[string]string{"chain_identifier": l.ChainIdentifier()}), nil
	})
}

func getLedgerInfo(s *State, _ json.RawMessage) (Result, error) {
	return s.Read(MethodGetLedgerInfo, func(l Ledger) (Result, error) {
		return ResultOf(l.Info()), nil
	})
}

type executeArgs struct {
	TxBytes    string   `json:"tx_bytes"`
	Signatures []string `json:"signatures"`
}

func executeTransaction(s *State, args json.RawMessage) (Result, error) {
	const method = MethodExecuteTransaction
	a, err := decodeArgs[executeArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.TxBytes == "" {
		return nil, missingArg(method, "tx_bytes")
	}
	tx, err := engine.DecodeTransaction(a.TxBytes, a.Signatures)
	if err != nil {
		return nil, newHandlerError(method, "Unable to deserialize transaction", err)
	}

	return s.Write(method, func(l Ledger) (Result, error) {
		effects, err := l.ExecuteTransaction(tx)
		if err != nil {
			return nil, newHandlerError(method, "Failed to execute transaction", err)
		}
		return ResultOf(effects), nil
	})
}

func createCheckpoint(s *State, _ json.RawMessage) (Result, error) {
	return s.Write(MethodCreateCheckpoint, func(l Ledger) (Result, error) {
		return ResultOf(l.CreateCheckpoint()), nil
	})
}

func advanceEpoch(s *State, _ json.RawMessage) (Result, error) {
	return s.Write(MethodAdvanceEpoch, func(l Ledger) (Result, error) {
		return ResultOf(map[string]uint64{"epoch": l.AdvanceEpoch()}), nil
	})
}

type clockArgs struct {
	Duration *int64 `json:"duration"`
}

func advanceClock(s *State, args json.RawMessage) (Result, error) {
	const method = MethodAdvanceClock
	a, err := decodeArgs[clockArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.Duration == nil {
		return nil, missingArg(method, "duration")
	}
	if *a.Duration > maxClockAdvanceMs {
		return nil, invalidArgs(method, fmt.Errorf("duration %d ms exceeds maximum %d ms", *a.Duration, maxClockAdvanceMs))
	}
	d := time.Duration(*a.Duration) * time.Millisecond

	return s.Write(method, func(l Ledger) (Result, error) {
		ts, err := l.AdvanceClock(d)
		if err != nil {
			return nil, newHandlerError(method, "Failed to advance clock", err)
		}
		return ResultOf(map[string]uint64{"timestamp_ms": ts}), nil
	})
}

type gasArgs struct {
	Recipient *engine.Address `json:"recipient"`
	Amount    uint64          `json:"amount"`
}

// GasCoin is one coin credited by the faucet.
type GasCoin struct {
	Amount           uint64          `json:"amount"`
	ID               engine.ObjectID `json:"id"`
	TransferTxDigest engine.Digest   `json:"transfer_tx_digest"`
}

// GasReceipt is the requestGas result.
type GasReceipt struct {
	TransferredGasObjects []GasCoin `json:"transferred_gas_objects"`
	Checkpoint            uint64    `json:"checkpoint"`
	TimestampMs           uint64    `json:"timestamp_ms"`
}

// requestGas pays the recipient, cuts a checkpoint and advances the clock
// under one write lock.
func requestGas(s *State, args json.RawMessage) (Result, error) {
	const method = MethodRequestGas
	a, err := decodeArgs[gasArgs](method, args)
	if err != nil {
		return nil, err
	}
	if a.Recipient == nil {
		return nil, missingArg(method, "recipient")
	}
	amount := a.Amount
	if amount == 0 {
		amount = s.faucetAmount
	}

	return s.Write(method, func(l Ledger) (Result, error) {
		effects, err := l.RequestGas(*a.Recipient, amount)
		if err != nil {
			return nil, newHandlerError(method, "Failed to request gas", err)
		}
		_, coin, err := l.Balance(*a.Recipient)
		if err != nil {
			return nil, newHandlerError(method, "Failed to find recipient coin", err)
		}
		cp := l.CreateCheckpoint()
		ts, err := l.AdvanceClock(faucetClockAdvance)
		if err != nil {
			return nil, newHandlerError(method, "Failed to advance clock", err)
		}
		return ResultOf(GasReceipt{
			TransferredGasObjects: []GasCoin{{
				Amount:           amount,
				ID:               coin,
				TransferTxDigest: effects.TransactionDigest,
			}},
			Checkpoint:  cp.Data.SequenceNumber,
			TimestampMs: ts,
		}), nil
	})
}
