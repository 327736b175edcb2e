// Package client is a Go consumer of the simulator's request envelope,
// in-process or over the framed TCP protocol.
package client

import (
	"context"
	"encoding/base64"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simulator/arrow"
	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// RemoteError is a failure envelope returned by the simulator.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Client issues typed calls over a Transport.
type Client struct {
	transport Transport
}

// New creates a client on t.
func New(t Transport) *Client {
	return &Client{transport: t}
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Call sends method with args and decodes the data payload as T.
func Call[T any](ctx context.Context, c *Client, method string, args any) (T, error) {
	var out T

	req, err := bridge.EncodeRequest(method, args)
	if err != nil {
		return out, fmt.Errorf("failed to encode request: %w", err)
	}
	raw, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return out, fmt.Errorf("%s: %w", method, err)
	}
	resp, err := bridge.DecodeResponse(raw)
	if err != nil {
		return out, fmt.Errorf("%s: %w", method, err)
	}
	if !resp.Success {
		return out, &RemoteError{Method: method, Message: *resp.ErrorMessage}
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("%s: failed to decode data: %w", method, err)
	}
	return out, nil
}

func (c *Client) LatestCheckpoint(ctx context.Context) (*engine.VerifiedCheckpoint, error) {
	return Call[*engine.VerifiedCheckpoint](ctx, c, bridge.MethodGetLatestCheckpoint, nil)
}

func (c *Client) HighestVerifiedCheckpoint(ctx context.Context) (*engine.VerifiedCheckpoint, error) {
	return Call[*engine.VerifiedCheckpoint](ctx, c, bridge.MethodGetHighestVerifiedCheckpoint, nil)
}

func (c *Client) CheckpointBySequenceNumber(ctx context.Context, seq uint64) (*engine.VerifiedCheckpoint, error) {
	return Call[*engine.VerifiedCheckpoint](ctx, c, bridge.MethodGetCheckpointBySequenceNumber,
		map[string]uint64{"sequence_number": seq})
}

// Checkpoints pages through checkpoints. A nil cursor starts at the oldest
// (or newest, when descending).
func (c *Client) Checkpoints(ctx context.Context, cursor *uint64, limit int, descending bool) (*engine.CheckpointPage, error) {
	args := map[string]any{"limit": limit, "descending": descending}
	if cursor != nil {
		args["cursor"] = *cursor
	}
	return Call[*engine.CheckpointPage](ctx, c, bridge.MethodGetCheckpoints, args)
}

// ExportCheckpoints fetches up to limit checkpoints from start as Arrow
// rows. next is nil when there is nothing after the last row.
func (c *Client) ExportCheckpoints(ctx context.Context, start uint64, limit int) (rows []arrow.CheckpointRow, next *uint64, err error) {
	out, err := Call[bridge.CheckpointExport](ctx, c, bridge.MethodExportCheckpoints,
		map[string]any{"start": start, "limit": limit})
	if err != nil {
		return nil, nil, err
	}
	if out.Format != arrow.StreamFormat {
		return nil, nil, fmt.Errorf("unsupported export format %q", out.Format)
	}
	data, err := base64.StdEncoding.DecodeString(out.IPC)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode export payload: %w", err)
	}
	rows, err = arrow.DecodeCheckpoints(data)
	if err != nil {
		return nil, nil, err
	}
	return rows, out.NextStart, nil
}

func (c *Client) Balance(ctx context.Context, owner engine.Address) (bridge.BalanceResult, error) {
	return Call[bridge.BalanceResult](ctx, c, bridge.MethodGetBalance, map[string]engine.Address{"owner": owner})
}

func (c *Client) ChainIdentifier(ctx context.Context) (string, error) {
	out, err := Call[map[string]string](ctx, c, bridge.MethodGetChainIdentifier, nil)
	return out["chain_identifier"], err
}

func (c *Client) CreateCheckpoint(ctx context.Context) (*engine.VerifiedCheckpoint, error) {
	return Call[*engine.VerifiedCheckpoint](ctx, c, bridge.MethodCreateCheckpoint, nil)
}

func (c *Client) AdvanceEpoch(ctx context.Context) (uint64, error) {
	out, err := Call[map[string]uint64](ctx, c, bridge.MethodAdvanceEpoch, nil)
	return out["epoch"], err
}

// AdvanceClock moves the clock by ms milliseconds and returns the new time.
func (c *Client) AdvanceClock(ctx context.Context, ms int64) (uint64, error) {
	out, err := Call[map[string]uint64](ctx, c, bridge.MethodAdvanceClock, map[string]int64{"duration": ms})
	return out["timestamp_ms"], err
}

// RequestGas asks the faucet for amount; zero selects the server default.
func (c *Client) RequestGas(ctx context.Context, recipient engine.Address, amount uint64) (bridge.GasReceipt, error) {
	args := map[string]any{"recipient": recipient}
	if amount > 0 {
		args["amount"] = amount
	}
	return Call[bridge.GasReceipt](ctx, c, bridge.MethodRequestGas, args)
}
