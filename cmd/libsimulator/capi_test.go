package main

import (
	"math"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/config"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

func request(t *testing.T, method string, args any) []byte {
	t.Helper()
	b, err := bridge.EncodeRequest(method, args)
	require.NoError(t, err)
	return b
}

func decode(t *testing.T, raw []byte) *bridge.Response {
	t.Helper()
	resp, err := bridge.DecodeResponse(raw)
	require.NoError(t, err)
	return resp
}

func call(t *testing.T, h cHandle, req []byte) *bridge.Response {
	t.Helper()
	raw, null := callExecute(h, req)
	require.False(t, null, "null response buffer")
	return decode(t, raw)
}

func emptyEnv(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvFixture, "0")
	t.Setenv(config.EnvIngestionPath, "")
}

func TestCreateDestroy(t *testing.T) {
	emptyEnv(t)

	h := simulator_create()
	require.NotNil(t, h)
	simulator_destroy(h)
	simulator_destroy(nil)
}

func TestExecuteInvalidInput(t *testing.T) {
	emptyEnv(t)
	h := simulator_create()
	require.NotNil(t, h)
	defer simulator_destroy(h)

	tests := []struct {
		name    string
		handle  bool
		request []byte
		message string
	}{
		{"null handle", false, request(t, bridge.MethodGetChainIdentifier, nil), "Invalid handle or request data"},
		{"null data", true, nil, "Invalid handle or request data"},
		{"unknown method", true, request(t, "noSuchMethod", nil), "Unknown method: noSuchMethod"},
		{"truncated", true, []byte(`{"method": "getLat`), "Failed to parse request"},
		{"not utf8", true, []byte{0xff, 0xfe, 0x00}, "Failed to parse request"},
		{"empty", true, []byte{}, "Failed to parse request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := h
			if !tt.handle {
				target = nil
			}
			resp := call(t, target, tt.request)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.ErrorMessage)
			assert.Contains(t, *resp.ErrorMessage, tt.message)
		})
	}
}

func TestExecuteRejectsOversizedLength(t *testing.T) {
	emptyEnv(t)
	h := simulator_create()
	require.NotNil(t, h)
	defer simulator_destroy(h)

	req := request(t, bridge.MethodGetChainIdentifier, nil)
	for _, length := range []uint64{maxRequestSize + 1, math.MaxInt64 + 1, math.MaxUint64} {
		raw, null := callExecuteLength(h, req, length)
		require.False(t, null, "null response buffer for length %d", length)
		resp := decode(t, raw)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.ErrorMessage)
		assert.Contains(t, *resp.ErrorMessage, "Request too large")
	}

	raw, null := callExecuteLength(h, req, uint64(len(req)))
	require.False(t, null)
	assert.True(t, decode(t, raw).Success)
}

func TestExecuteRoundTrip(t *testing.T) {
	emptyEnv(t)
	h := simulator_create()
	require.NotNil(t, h)
	defer simulator_destroy(h)

	resp := call(t, h, []byte(`{"method":"createCheckpoint"}`))
	require.True(t, resp.Success)

	var cp engine.VerifiedCheckpoint
	require.NoError(t, json.Unmarshal(resp.Data, &cp))
	assert.Equal(t, uint64(0), cp.Data.SequenceNumber)

	resp = call(t, h, request(t, bridge.MethodGetLatestCheckpoint, nil))
	require.True(t, resp.Success)
	var latest engine.VerifiedCheckpoint
	require.NoError(t, json.Unmarshal(resp.Data, &latest))
	assert.Equal(t, cp.Data.ContentDigest, latest.Data.ContentDigest)
}

func TestExecuteConcurrentReads(t *testing.T) {
	emptyEnv(t)
	h := simulator_create()
	require.NotNil(t, h)
	defer simulator_destroy(h)

	req := request(t, bridge.MethodGetChainIdentifier, nil)
	var wg sync.WaitGroup
	results := make([][]byte, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = callExecute(h, req)
		}(i)
	}
	wg.Wait()

	for _, raw := range results {
		resp := decode(t, raw)
		assert.True(t, resp.Success)
		assert.Equal(t, results[0], raw)
	}
}

func TestFixtureBootstrap(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvFixture, "1")
	t.Setenv(config.EnvIngestionPath, "")

	h := simulator_create()
	require.NotNil(t, h)
	defer simulator_destroy(h)

	resp := call(t, h, request(t, bridge.MethodGetLatestCheckpoint, nil))
	require.True(t, resp.Success)

	var cp engine.VerifiedCheckpoint
	require.NoError(t, json.Unmarshal(resp.Data, &cp))
	assert.Equal(t, uint64(899), cp.Data.SequenceNumber)
	assert.Equal(t, uint64(2), cp.Data.Epoch)
}

func TestFreeEmpty(t *testing.T) {
	freeEmpty()
}
