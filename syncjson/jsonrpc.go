package syncjson

import (
	"encoding/json"
	"fmt"
)

// RPCErrorCode represents an error code to be used as a part of an RPCError
// which is in turn used in a JSON-RPC Response object.
type RPCErrorCode int

// RPCError represents an error that is used as a part of a JSON-RPC Response
// object.
type RPCError struct {
	Code    RPCErrorCode `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Guarantee RPCError satisfies the builtin error interface.
var _, _ error = RPCError{}, (*RPCError)(nil)

// Error returns a string describing the RPC error.  This satisfies the
// builtin error interface.
func (e RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewRPCError constitutes a new RPCError suitable for use in a JSON-RPC
// Response object.
func NewRPCError(code RPCErrorCode, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// IsValidIDType checks that the ID field (which can go in any of the JSON-RPC
// requests, responses, or notifications) is valid.  JSON-RPC 1.0 allows any
// valid JSON type.  JSON-RPC 2.0 (which we follow here) only allows string,
// number, or null, so this function restricts the allowed types to that list.
func IsValidIDType(id interface{}) bool {
	switch id.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		string,
		nil:
		return true
	default:
		return false
	}
}

// Request is a type for raw JSON-RPC 2.0 requests.  The Method field
// identifies the concrete command type to unmarshal the Params into.
type Request struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// NewRequest returns a new JSON-RPC request object given the provided id,
// method, and command struct.  The Params field is the JSON object form of
// the command.  The id may be any valid JSON-RPC id.
func NewRequest(id interface{}, method string, cmd interface{}) (*Request, error) {
	if !IsValidIDType(id) {
		return nil, fmt.Errorf("the id of type '%T' is invalid", id)
	}

	var rawParams json.RawMessage
	if cmd != nil {
		marshalled, err := json.Marshal(cmd)
		if err != nil {
			return nil, err
		}
		rawParams = json.RawMessage(marshalled)
	}
	return &Request{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  rawParams,
		ID:      id,
	}, nil
}

// Response is the general form of a JSON-RPC response.  The type of the
// Result field varies from one command to the next, so it is implemented as
// an interface.  The ID field has to be a pointer to allow for a nil value
// when empty.
type Response struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      *interface{}    `json:"id"`
}

// NewResponse returns a new JSON-RPC response object given the provided id,
// marshalled result, and RPC error.  This function is only provided in case
// the caller wants to construct raw responses for some reason.
func NewResponse(id interface{}, marshalledResult []byte, rpcErr *RPCError) (*Response, error) {
	if !IsValidIDType(id) {
		return nil, fmt.Errorf("the id of type '%T' is invalid", id)
	}

	pid := &id
	return &Response{
		Jsonrpc: "2.0",
		Result:  marshalledResult,
		Error:   rpcErr,
		ID:      pid,
	}, nil
}

// MarshalResponse marshals the passed id, result, and RPCError to a JSON-RPC
// response byte slice that is suitable for transmission to a JSON-RPC client.
func MarshalResponse(id interface{}, result interface{}, rpcErr *RPCError) ([]byte, error) {
	marshalledResult, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	response, err := NewResponse(id, marshalledResult, rpcErr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&response)
}

// Notification is the form of a JSON-RPC notification: a request with a nil
// id that the server pushes without being asked.
type Notification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// MarshalNtfn marshals a notification payload under the given method name
// to a byte slice suitable for transmission to a JSON-RPC client.
func MarshalNtfn(method string, ntfn interface{}) ([]byte, error) {
	rawParams, err := json.Marshal(ntfn)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Notification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  rawParams,
	})
}
