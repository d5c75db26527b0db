package wallet

import (
	"encoding/json"
	"fmt"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcMessage is either a response (ID set) or a notification (Method set).
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorObj    `json:"error,omitempty"`
}

type rpcErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (o *rpcErrorObj) toError() *RPCError {
	e := &RPCError{Code: o.Code, Message: o.Message}
	if len(o.Data) > 0 {
		var v any
		if err := json.Unmarshal(o.Data, &v); err == nil {
			e.Data = v
		}
	}
	return e
}

func parseMessage(b []byte) (rpcMessage, error) {
	var m rpcMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return rpcMessage{}, err
	}
	if m.JSONRPC != "" && m.JSONRPC != "2.0" {
		return rpcMessage{}, fmt.Errorf("unsupported jsonrpc version")
	}
	if m.ID == nil && m.Method == "" {
		return rpcMessage{}, fmt.Errorf("neither response nor notification")
	}
	return m, nil
}
