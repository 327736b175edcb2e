package bridge

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		method string
		args   string
	}{
		{"with args", `{"method":"m","args":{"a":1}}`, "m", `{"a":1}`},
		{"missing args", `{"method":"m"}`, "m", `{}`},
		{"null args", `{"method":"m","args":null}`, "m", `{}`},
		{"scalar args", `{"method":"m","args":5}`, "m", `5`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.method, req.Method)
			assert.JSONEq(t, tt.args, string(req.Args))
		})
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		code  string
	}{
		{"non utf8", []byte{'{', 0xff, 0xfe, '}'}, CodeInvalidInput},
		{"truncated", []byte(`{"method":"getLat`), CodeParse},
		{"empty", []byte{}, CodeParse},
		{"array", []byte(`["getLatestCheckpoint"]`), CodeParse},
		{"string", []byte(`"getLatestCheckpoint"`), CodeParse},
		{"missing method", []byte(`{"args":{}}`), CodeParse},
		{"empty method", []byte(`{"method":""}`), CodeParse},
		{"numeric method", []byte(`{"method":7}`), CodeParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(tt.input)
			require.Error(t, err)
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.code, perr.Code)
		})
	}
}

func TestEncodeRequest(t *testing.T) {
	b, err := EncodeRequest("m", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"m","args":{}}`, string(b))

	b, err = EncodeRequest("m", map[string]int{"duration": 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"m","args":{"duration":5}}`, string(b))
}

func TestEncodeResult(t *testing.T) {
	b, err := EncodeResult(ResultOf(map[string]int{"x": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"x":1},"error_message":null}`, string(b))
}

type failingResult struct{}

func (failingResult) MarshalJSON() ([]byte, error) { return nil, errors.New("boom") }

type panickingResult struct{}

func (panickingResult) MarshalJSON() ([]byte, error) { panic("kaboom") }

func TestEncodeResultFailures(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{"marshal error", failingResult{}},
		{"marshal panic", panickingResult{}},
		{"nil result", nil},
		{"null value", ResultOf(nil)},
		{"invalid json", RawResult(`{"x":`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeResult(tt.result)
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, CodeSerialization, perr.Code)

			resp, derr := DecodeResponse(b)
			require.NoError(t, derr)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.ErrorMessage)
			assert.Contains(t, *resp.ErrorMessage, "Failed to serialize result: ")
		})
	}
}

func TestEncodeFailure(t *testing.T) {
	b := EncodeFailure(`Unknown method: "quoted"`)
	assert.JSONEq(t, `{"success":false,"data":null,"error_message":"Unknown method: \"quoted\""}`, string(b))
}

func TestDecodeResponseConsistency(t *testing.T) {
	bad := []string{
		`{"success":true,"data":null,"error_message":null}`,
		`{"success":true,"data":1,"error_message":"x"}`,
		`{"success":false,"data":1,"error_message":"x"}`,
		`{"success":false,"data":null,"error_message":null}`,
	}
	for _, b := range bad {
		_, err := DecodeResponse([]byte(b))
		assert.Error(t, err, b)
	}
}

func FuzzDecodeRequest(f *testing.F) {
	f.Add([]byte(`{"method":"getLatestCheckpoint","args":{}}`))
	f.Add([]byte(`{"method":"getLatestCheckpoint"}`))
	f.Add([]byte(`{"method":`))
	f.Add([]byte{0xff, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		req, err := DecodeRequest(data)
		if err != nil {
			return
		}
		if req.Method == "" {
			t.Fatal("decoded request with empty method")
		}
		if !json.Valid(req.Args) {
			t.Fatalf("decoded args are not valid JSON: %q", req.Args)
		}
	})
}
