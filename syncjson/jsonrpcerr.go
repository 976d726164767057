package syncjson

// Standard JSON-RPC 2.0 errors.
var (
	ErrRPCInvalidRequest = &RPCError{
		Code:    -32600,
		Message: "Invalid request",
	}
	ErrRPCMethodNotFound = &RPCError{
		Code:    -32601,
		Message: "Method not found",
	}
	ErrRPCInvalidParams = &RPCError{
		Code:    -32602,
		Message: "Invalid parameters",
	}
	ErrRPCInternal = &RPCError{
		Code:    -32603,
		Message: "Internal error",
	}
	ErrRPCParse = &RPCError{
		Code:    -32700,
		Message: "Parse error",
	}
)

var (
	ErrUnauthorized = &RPCError{
		Code:    302,
		Message: "User unauthorized",
	}
	ErrInvalidRequestParams = &RPCError{
		Code:    401,
		Message: "Invalid request params",
	}
	ErrAlreadyAuthenticated = &RPCError{
		Code:    402,
		Message: "Already authenticated",
	}
	ErrInvalidStrategy = &RPCError{
		Code:    403,
		Message: "Unknown cache strategy",
	}
	ErrUnknownEntity = &RPCError{
		Code:    404,
		Message: "Unknown watch entity",
	}
	ErrNotFound = &RPCError{
		Code:    409,
		Message: "Not found",
	}
	ErrSyncInProgress = &RPCError{
		Code:    410,
		Message: "A sync pass is already in progress",
	}
	ErrInternal = &RPCError{
		Code:    500,
		Message: "Internal error",
	}
)
