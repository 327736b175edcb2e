package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Result is a handler's success value. It serializes itself, so concrete
// ledger types never reach the registry or the encoder.
type Result interface {
	MarshalJSON() ([]byte, error)
}

type valueResult struct{ v any }

func (r valueResult) MarshalJSON() ([]byte, error) { return json.Marshal(r.v) }

// ResultOf wraps any JSON-encodable value.
func ResultOf(v any) Result { return valueResult{v: v} }

// RawResult is an already encoded JSON value.
type RawResult json.RawMessage

func (r RawResult) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// DecodeResult re-reads a result as T.
func DecodeResult[T any](r Result) (T, error) {
	var v T
	if r == nil {
		return v, errors.New("nil result")
	}
	b, err := r.MarshalJSON()
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("failed to decode result: %w", err)
	}
	return v, nil
}

// Request is the decoded request envelope.
type Request struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

// Response is the response envelope. Exactly one of Data and ErrorMessage
// is non-null.
type Response struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	ErrorMessage *string         `json:"error_message"`
}

var (
	emptyArgs = json.RawMessage(`{}`)
	nullJSON  = []byte("null")

	// fallbackFailure is returned if a failure envelope itself cannot be
	// encoded.
	fallbackFailure = []byte(`{"success":false,"data":null,"error_message":"Failed to encode response"}`)
)

// DecodeRequest parses a request envelope. Missing or null args become {}.
func DecodeRequest(b []byte) (*Request, error) {
	if !utf8.Valid(b) {
		return nil, &ProtocolError{Code: CodeInvalidInput, Message: "request is not valid UTF-8"}
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &ProtocolError{Code: CodeParse, Message: "empty request"}
	}

	var raw struct {
		Method *string          `json:"method"`
		Args   *json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &ProtocolError{Code: CodeParse, Message: err.Error(), Err: err}
	}
	if raw.Method == nil {
		return nil, &ProtocolError{Code: CodeParse, Message: "missing field `method`"}
	}
	if *raw.Method == "" {
		return nil, &ProtocolError{Code: CodeParse, Message: "empty field `method`"}
	}

	req := &Request{Method: *raw.Method, Args: emptyArgs}
	if raw.Args != nil && !bytes.Equal(bytes.TrimSpace(*raw.Args), nullJSON) {
		req.Args = *raw.Args
	}
	return req, nil
}

// EncodeRequest builds a request envelope; nil args encode as {}.
func EncodeRequest(method string, args any) ([]byte, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Request{Method: method, Args: raw})
}

func marshalArgs(args any) (json.RawMessage, error) {
	switch a := args.(type) {
	case nil:
		return emptyArgs, nil
	case json.RawMessage:
		if len(a) == 0 {
			return emptyArgs, nil
		}
		return a, nil
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("failed to encode args: %w", err)
		}
		return b, nil
	}
}

var errNullResult = errors.New("result is null")

// marshalResult encodes r, treating null and marshaler panics as failures.
func marshalResult(r Result) (data []byte, err error) {
	if r == nil {
		return nil, errNullResult
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while encoding: %v", p)
		}
	}()
	data, err = r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, nullJSON) {
		return nil, errNullResult
	}
	if !json.Valid(data) {
		return nil, errors.New("result is not valid JSON")
	}
	return data, nil
}

// EncodeResult builds a success envelope. If the result cannot be
// serialized the envelope reports the failure instead.
func EncodeResult(r Result) ([]byte, error) {
	data, err := marshalResult(r)
	if err != nil {
		perr := &ProtocolError{Code: CodeSerialization, Message: "Failed to serialize result: " + err.Error(), Err: err}
		return EncodeFailure(perr.Message), perr
	}
	out, err := json.Marshal(Response{Success: true, Data: data})
	if err != nil {
		perr := &ProtocolError{Code: CodeSerialization, Message: "Failed to serialize result: " + err.Error(), Err: err}
		return EncodeFailure(perr.Message), perr
	}
	return out, nil
}

// EncodeFailure builds a failure envelope. It always returns a valid
// envelope.
func EncodeFailure(message string) []byte {
	out, err := json.Marshal(Response{Success: false, Data: nullJSON, ErrorMessage: &message})
	if err != nil {
		return append([]byte(nil), fallbackFailure...)
	}
	return out
}

// DecodeResponse parses a response envelope and checks that success and
// its payload agree.
func DecodeResponse(b []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	hasData := len(resp.Data) > 0 && !bytes.Equal(bytes.TrimSpace(resp.Data), nullJSON)
	switch {
	case resp.Success && (!hasData || resp.ErrorMessage != nil):
		return nil, errors.New("inconsistent success envelope")
	case !resp.Success && (hasData || resp.ErrorMessage == nil):
		return nil, errors.New("inconsistent failure envelope")
	}
	return &resp, nil
}
