package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Simulator/config"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// newTestHandle returns a handle over a simulator with n checkpoints.
func newTestHandle(t *testing.T, n int) (*Handle, *engine.Simulator) {
	t.Helper()
	sim := engine.New(engine.DefaultConfig())
	for i := 0; i < n; i++ {
		sim.CreateCheckpoint()
	}
	h := NewHandle(sim, Options{})
	t.Cleanup(func() { _ = h.Destroy() })
	return h, sim
}

func execute(t *testing.T, h *Handle, method string, args any) *Response {
	t.Helper()
	req, err := EncodeRequest(method, args)
	require.NoError(t, err)
	resp, err := DecodeResponse(h.Execute(req))
	require.NoError(t, err)
	return resp
}

func requireFailure(t *testing.T, resp *Response, message string) {
	t.Helper()
	require.False(t, resp.Success)
	require.NotNil(t, resp.ErrorMessage)
	assert.Equal(t, message, *resp.ErrorMessage)
}

func TestExecuteUnknownMethod(t *testing.T) {
	h, _ := newTestHandle(t, 1)
	resp := execute(t, h, "doesNotExist", nil)
	requireFailure(t, resp, "Unknown method: doesNotExist")
}

func TestExecuteInvalidHandleOrData(t *testing.T) {
	var nilHandle *Handle
	resp, err := DecodeResponse(nilHandle.Execute([]byte(`{"method":"getLatestCheckpoint"}`)))
	require.NoError(t, err)
	requireFailure(t, resp, "Invalid handle or request data")

	h, _ := newTestHandle(t, 1)
	resp, err = DecodeResponse(h.Execute(nil))
	require.NoError(t, err)
	requireFailure(t, resp, "Invalid handle or request data")
}

func TestExecuteMalformed(t *testing.T) {
	h, _ := newTestHandle(t, 1)
	for _, input := range [][]byte{
		{0xff, 0xfe, 0xfd},
		[]byte(`{"method":"getLatestCheck`),
		[]byte(`[]`),
		{},
	} {
		out := h.Execute(input)
		require.NotNil(t, out)
		resp, err := DecodeResponse(out)
		require.NoError(t, err, "input %q", input)
		require.False(t, resp.Success)
		assert.Contains(t, *resp.ErrorMessage, "Failed to parse request: ")
	}
}

func TestExecuteLatestCheckpointRoundTrip(t *testing.T) {
	h, sim := newTestHandle(t, 3)

	resp := execute(t, h, MethodGetLatestCheckpoint, nil)
	require.True(t, resp.Success)
	assert.Nil(t, resp.ErrorMessage)

	direct, err := sim.LatestCheckpoint()
	require.NoError(t, err)
	want, err := json.Marshal(direct)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(resp.Data))

	var got engine.VerifiedCheckpoint
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, uint64(2), got.Data.SequenceNumber)
}

func TestExecuteLatestCheckpointEmptyLedger(t *testing.T) {
	h, _ := newTestHandle(t, 0)
	resp := execute(t, h, MethodGetLatestCheckpoint, nil)
	require.False(t, resp.Success)
	assert.Contains(t, *resp.ErrorMessage, "Handler error: Failed to get latest checkpoint: ")
}

func TestExecuteConcurrentReads(t *testing.T) {
	h, _ := newTestHandle(t, 5)
	req, err := EncodeRequest(MethodGetLatestCheckpoint, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := DecodeResponse(h.Execute(req))
			if err != nil {
				errs <- err
				return
			}
			if !resp.Success {
				errs <- fmt.Errorf("unexpected failure: %s", *resp.ErrorMessage)
				return
			}
			var cp engine.VerifiedCheckpoint
			if err := json.Unmarshal(resp.Data, &cp); err != nil {
				errs <- err
				return
			}
			if cp.Data.SequenceNumber != 4 {
				errs <- fmt.Errorf("sequence number %d", cp.Data.SequenceNumber)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestExecuteConcurrentReadsAndWrites(t *testing.T) {
	h, sim := newTestHandle(t, 1)
	write, err := EncodeRequest(MethodCreateCheckpoint, nil)
	require.NoError(t, err)
	read, err := EncodeRequest(MethodGetLedgerInfo, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, req := range [][]byte{write, read} {
			wg.Add(1)
			go func(req []byte) {
				defer wg.Done()
				resp, err := DecodeResponse(h.Execute(req))
				if assert.NoError(t, err) {
					assert.True(t, resp.Success)
				}
			}(req)
		}
	}
	wg.Wait()

	latest, err := sim.LatestCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), latest.Data.SequenceNumber)
}

func TestDestroy(t *testing.T) {
	var nilHandle *Handle
	assert.NoError(t, nilHandle.Destroy())

	h, _ := newTestHandle(t, 1)
	require.NoError(t, h.Destroy())
	require.NoError(t, h.Destroy())

	resp := execute(t, h, MethodGetLatestCheckpoint, nil)
	requireFailure(t, resp, "Handler error: Failed to acquire read lock: state closed")

	resp = execute(t, h, MethodCreateCheckpoint, nil)
	requireFailure(t, resp, "Handler error: Failed to acquire write lock: state closed")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestDestroyClosesResources(t *testing.T) {
	var closed []string
	errBoom := errors.New("boom")
	h := NewHandle(engine.New(engine.DefaultConfig()), Options{Closers: []io.Closer{
		closerFunc(func() error { closed = append(closed, "a"); return nil }),
		closerFunc(func() error { closed = append(closed, "b"); return errBoom }),
	}})

	err := h.Destroy()
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"a", "b"}, closed)
}

func TestPanicDoesNotPoisonState(t *testing.T) {
	r := NewRegistry()
	r.Register("explodeRead", func(s *State, _ json.RawMessage) (Result, error) {
		return s.Read("explodeRead", func(Ledger) (Result, error) { panic("read boom") })
	})
	r.Register("explodeWrite", func(s *State, _ json.RawMessage) (Result, error) {
		return s.Write("explodeWrite", func(Ledger) (Result, error) { panic(errors.New("write boom")) })
	})
	r.Register("explodeOutside", func(*State, json.RawMessage) (Result, error) { panic("outside") })
	registerHandlers(r)

	h := NewHandle(engine.New(engine.DefaultConfig()), Options{Registry: r})
	defer h.Destroy()

	resp := execute(t, h, "explodeWrite", nil)
	requireFailure(t, resp, "Handler error: panic in handler: write boom")
	resp = execute(t, h, "explodeRead", nil)
	requireFailure(t, resp, "Handler error: panic in handler: read boom")
	resp = execute(t, h, "explodeOutside", nil)
	requireFailure(t, resp, "Handler error: panic in handler: outside")

	// the lock was released: both modes still work
	resp = execute(t, h, MethodCreateCheckpoint, nil)
	require.True(t, resp.Success)
	resp = execute(t, h, MethodGetLatestCheckpoint, nil)
	require.True(t, resp.Success)
}

func TestCall(t *testing.T) {
	h, _ := newTestHandle(t, 2)

	res, err := h.Call(MethodGetCheckpointBySequenceNumber, map[string]uint64{"sequence_number": 1})
	require.NoError(t, err)
	b, err := res.MarshalJSON()
	require.NoError(t, err)
	var cp engine.VerifiedCheckpoint
	require.NoError(t, json.Unmarshal(b, &cp))
	assert.Equal(t, uint64(1), cp.Data.SequenceNumber)

	_, err = h.Call("nope", nil)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CodeUnknownMethod, perr.Code)

	_, err = h.Call(MethodGetCheckpointBySequenceNumber, map[string]uint64{"sequence_number": 99})
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.ErrorIs(t, err, engine.ErrCheckpointNotFound)
	assert.NotErrorIs(t, err, ErrInvalidArgs)

	_, err = h.Call(MethodGetCheckpointBySequenceNumber, nil)
	assert.ErrorIs(t, err, ErrInvalidArgs)

	cp2, err := DecodeResult[engine.VerifiedCheckpoint](res)
	require.NoError(t, err)
	assert.Equal(t, cp.Data.ContentDigest, cp2.Data.ContentDigest)
}

func TestSubscribe(t *testing.T) {
	h, _ := newTestHandle(t, 0)
	var seen []uint64
	require.NoError(t, h.Subscribe(engine.CheckpointObserverFunc(func(cp *engine.VerifiedCheckpoint, _ *engine.CheckpointContents) {
		seen = append(seen, cp.Data.SequenceNumber)
	})))

	execute(t, h, MethodCreateCheckpoint, nil)
	execute(t, h, MethodCreateCheckpoint, nil)
	assert.Equal(t, []uint64{0, 1}, seen)
}

func TestCreateWithFixture(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	h, err := CreateWithConfig(cfg)
	require.NoError(t, err)
	defer h.Destroy()

	resp := execute(t, h, MethodGetLatestCheckpoint, nil)
	require.True(t, resp.Success)
	var cp engine.VerifiedCheckpoint
	require.NoError(t, json.Unmarshal(resp.Data, &cp))
	assert.Equal(t, uint64(899), cp.Data.SequenceNumber)
	assert.Equal(t, uint64(2), cp.Data.Epoch)

	resp = execute(t, h, MethodGetLedgerInfo, nil)
	require.True(t, resp.Success)
	var info engine.LedgerInfo
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	assert.Equal(t, uint64(2), info.Epoch)
	assert.Equal(t, uint64(30), info.NetworkTotalTransactions)
}

func TestCreateThenDestroy(t *testing.T) {
	cfg := config.Default()
	cfg.Fixture.Enabled = false
	for i := 0; i < 3; i++ {
		h, err := CreateWithConfig(cfg)
		require.NoError(t, err)
		require.NoError(t, h.Destroy())
	}
}

func TestCreateWithIngestion(t *testing.T) {
	cfg := config.Default()
	cfg.Fixture.Enabled = false
	cfg.Ingestion.Path = t.TempDir() + "/ledger.db"

	h, err := CreateWithConfig(cfg)
	require.NoError(t, err)
	resp := execute(t, h, MethodCreateCheckpoint, nil)
	require.True(t, resp.Success)
	require.NoError(t, h.Destroy())
}

func TestInitDiagnosticsIdempotent(t *testing.T) {
	a := InitDiagnostics(config.LogConfig{Level: "error", Format: "json"})
	b := InitDiagnostics(config.LogConfig{Level: "debug", Format: "console"})
	require.NotNil(t, a)
	assert.Same(t, a, b)
}
