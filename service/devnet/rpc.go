package devnet

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dchatlabs/dualledger/service/chain"
)

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int64             `json:"id"`
}

type rpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *rpcErrorBody `json:"error,omitempty"`
	ID      int64         `json:"id"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcSubmitMethods maps dchat_* submission methods to the chat-chain
// transaction type they record and the param field naming the sender.
var rpcSubmitMethods = map[string]struct {
	txType    string
	senderKey string
}{
	"dchat_register_user":       {chain.ChatTxRegisterUser, "user_id"},
	"dchat_send_direct_message": {chain.ChatTxSendDirectMessage, "sender"},
	"dchat_create_channel":      {chain.ChatTxCreateChannel, "owner"},
	"dchat_post_to_channel":     {chain.ChatTxPostToChannel, "sender"},
	"dchat_revoke_user":         {chain.ChatTxRevokeUser, "user_id"},
}

// handleRPC serves the JSON-RPC 2.0 surface: dchat_* submissions plus
// eth_getTransactionReceipt and eth_blockNumber.
func (s *Server) handleRPC() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if !decodeInto(w, r, &req, s.logger) {
			return
		}

		result, rpcErr := s.dispatchRPC(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
			s.logger.Debug("rpc call failed", "method", req.Method, "error", rpcErr.Message)
		} else {
			resp.Result = result
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

func (s *Server) dispatchRPC(req *rpcRequest) (any, *rpcErrorBody) {
	if m, ok := rpcSubmitMethods[req.Method]; ok {
		return s.rpcSubmit(req, m.txType, m.senderKey)
	}

	switch req.Method {
	case "eth_getTransactionReceipt":
		var txID string
		if err := firstParam(req, &txID); err != nil {
			return nil, &rpcErrorBody{Code: -32602, Message: err.Error()}
		}
		return s.rpcReceipt(txID), nil
	case "eth_blockNumber":
		return fmt.Sprintf("0x%x", s.chat.Block()), nil
	default:
		return nil, &rpcErrorBody{Code: -32601, Message: fmt.Sprintf("method %s not found", req.Method)}
	}
}

func (s *Server) rpcSubmit(req *rpcRequest, txType, senderKey string) (any, *rpcErrorBody) {
	var params map[string]any
	if err := firstParam(req, &params); err != nil {
		return nil, &rpcErrorBody{Code: -32602, Message: err.Error()}
	}
	sender, _ := params[senderKey].(string)
	if sender == "" {
		return nil, &rpcErrorBody{Code: -32602, Message: fmt.Sprintf("%s is required", senderKey)}
	}
	tx := s.chat.Submit(txType, sender, "", 0, params, "")
	return map[string]string{"tx_id": tx.ID}, nil
}

// rpcReceipt looks up a transaction on either chain. Unknown and still
// pending transactions both report a null receipt; callers keep polling.
func (s *Server) rpcReceipt(txID string) any {
	tx := s.chat.Get(txID)
	if tx == nil {
		tx = s.currency.Get(txID)
	}
	if tx == nil || tx.Status == chain.TxStatusPending {
		return nil
	}

	receipt := map[string]any{
		"tx_id":        tx.ID,
		"tx_hash":      txHash(tx.ID),
		"success":      tx.Status == chain.TxStatusConfirmed,
		"block_height": tx.BlockHeight,
		"block_hash":   txHash(fmt.Sprintf("block-%d", tx.BlockHeight)),
		"timestamp":    time.Unix(tx.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
	if tx.Error != "" {
		receipt["error"] = tx.Error
	}
	return receipt
}

func firstParam(req *rpcRequest, out any) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %v", err)
	}
	return nil
}
