package syncjson

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

var (
	// registerLock protects the maps below.
	registerLock sync.RWMutex

	// methodToConcreteType maps a JSON-RPC method to the concrete command
	// type it unmarshals into.
	methodToConcreteType = make(map[string]reflect.Type)

	// concreteTypeToMethod is the inverse mapping, used when marshalling
	// a command struct back into a request.
	concreteTypeToMethod = make(map[reflect.Type]string)
)

// RegisterCmd registers cmdValue, which must be a nil pointer to a command
// struct, under the given JSON-RPC method.  Registering the same method or
// type twice is an error.
func RegisterCmd(method string, cmdValue interface{}) error {
	registerLock.Lock()
	defer registerLock.Unlock()

	if _, ok := methodToConcreteType[method]; ok {
		return fmt.Errorf("method %q is already registered", method)
	}

	rtp := reflect.TypeOf(cmdValue)
	if rtp.Kind() != reflect.Ptr {
		return fmt.Errorf("command %q type must be a pointer, got %v", method, rtp.Kind())
	}
	rt := rtp.Elem()
	if rt.Kind() != reflect.Struct {
		return fmt.Errorf("command %q must point to a struct, got %v", method, rt.Kind())
	}
	if _, ok := concreteTypeToMethod[rtp]; ok {
		return fmt.Errorf("command type %v is already registered", rtp)
	}

	methodToConcreteType[method] = rtp
	concreteTypeToMethod[rtp] = method
	return nil
}

// MustRegisterCmd performs the same function as RegisterCmd except it panics
// if there is an error.  This should only be called from package init
// functions.
func MustRegisterCmd(method string, cmdValue interface{}) {
	if err := RegisterCmd(method, cmdValue); err != nil {
		panic(fmt.Sprintf("failed to register command %q: %v", method, err))
	}
}

// RegisteredMethods returns a snapshot of every method that has been
// registered.  The order is unspecified.
func RegisteredMethods() []string {
	registerLock.RLock()
	defer registerLock.RUnlock()

	methods := make([]string, 0, len(methodToConcreteType))
	for method := range methodToConcreteType {
		methods = append(methods, method)
	}
	return methods
}

// UnmarshalCmd unmarshals a JSON-RPC request into a concrete command struct
// for the request's method.  An unregistered method or malformed params
// yields an error.
func UnmarshalCmd(r *Request) (interface{}, error) {
	registerLock.RLock()
	rtp, ok := methodToConcreteType[r.Method]
	registerLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("method %q is not registered", r.Method)
	}

	cmd := reflect.New(rtp.Elem()).Interface()
	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, cmd); err != nil {
			return nil, fmt.Errorf("invalid params for method %q: %v", r.Method, err)
		}
	}
	return cmd, nil
}

// MarshalCmd marshals the passed command struct to a JSON-RPC request byte
// slice under its registered method, suitable for transmission to a server.
func MarshalCmd(id interface{}, cmd interface{}) ([]byte, error) {
	registerLock.RLock()
	method, ok := concreteTypeToMethod[reflect.TypeOf(cmd)]
	registerLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("command type %T is not registered", cmd)
	}

	request, err := NewRequest(id, method, cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(request)
}

// CmdMethod returns the registered method for the passed command struct.
func CmdMethod(cmd interface{}) (string, error) {
	registerLock.RLock()
	method, ok := concreteTypeToMethod[reflect.TypeOf(cmd)]
	registerLock.RUnlock()
	if !ok {
		return "", fmt.Errorf("command type %T is not registered", cmd)
	}
	return method, nil
}
