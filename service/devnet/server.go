package devnet

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dchatlabs/dualledger/service/bridge"
	"github.com/dchatlabs/dualledger/service/chain"
	"github.com/dchatlabs/dualledger/service/metrics"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Server serves the devnet's chat chain, currency chain, bridge, and
// JSON-RPC surfaces from one mux. All state is in-memory and scoped to
// the process lifetime.
type Server struct {
	addr     string
	chat     *ChainState
	currency *ChainState
	wallets  *WalletBook
	bridge   *bridgeBook
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a devnet server. threshold is the confirmation count at
// which pending transactions flip to confirmed on both chains; metrics
// may be nil.
func New(addr string, threshold int64, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		chat:     NewChainState("chat", threshold),
		currency: NewChainState("currency", threshold),
		wallets:  NewWalletBook(),
		bridge:   newBridgeBook(),
		metrics:  m,
		logger:   logger,
	}
}

// Chat exposes the chat ledger state, mainly for tests.
func (s *Server) Chat() *ChainState { return s.chat }

// Currency exposes the currency ledger state, mainly for tests.
func (s *Server) Currency() *ChainState { return s.currency }

// Wallets exposes the account book, mainly for tests.
func (s *Server) Wallets() *WalletBook { return s.wallets }

// AdvanceBlock advances both chains by n blocks and settles any bridge
// records whose legs have reached terminal states.
func (s *Server) AdvanceBlock(n int64) (chatBlock, currencyBlock int64) {
	chatBlock = s.chat.AdvanceBlock(n)
	currencyBlock = s.currency.AdvanceBlock(n)
	s.settleBridge()
	return chatBlock, currencyBlock
}

// handle registers a route with request metrics attached. The handler
// label is the route pattern without its method, a constant per endpoint.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	name := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		name = pattern[i+1:]
	}
	mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
}

// Handler builds the full devnet mux. Useful directly with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat chain
	s.handle(mux, "POST /chat/register_user", s.handleChatSubmit(chain.ChatTxRegisterUser, "user_id"))
	s.handle(mux, "POST /chat/send_message", s.handleChatSubmit(chain.ChatTxSendDirectMessage, "sender"))
	s.handle(mux, "POST /chat/create_channel", s.handleChatSubmit(chain.ChatTxCreateChannel, "owner"))
	s.handle(mux, "POST /chat/post_message", s.handleChatSubmit(chain.ChatTxPostToChannel, "sender"))
	s.handle(mux, "POST /chat/revoke_user", s.handleChatSubmit(chain.ChatTxRevokeUser, "user_id"))
	s.handle(mux, "GET /chat/reputation/{userId}", s.handleReputation())
	s.handle(mux, "GET /chat/transactions/{userId}", s.handleChainTransactions(s.chat))
	s.handle(mux, "GET /chat/transaction/{txId}", s.handleChainTransaction(s.chat))

	// Currency chain
	s.handle(mux, "POST /currency/create_wallet", s.handleCreateWallet())
	s.handle(mux, "GET /currency/wallet/{userId}", s.handleGetWallet())
	s.handle(mux, "POST /currency/transfer", s.handleTransfer())
	s.handle(mux, "POST /currency/stake", s.handleStake())
	s.handle(mux, "POST /currency/unstake", s.handleUnstake())
	s.handle(mux, "POST /currency/claim_rewards", s.handleClaimRewards())
	s.handle(mux, "GET /currency/transactions/{userId}", s.handleChainTransactions(s.currency))
	s.handle(mux, "GET /currency/transaction/{txId}", s.handleChainTransaction(s.currency))

	// Bridge
	s.handle(mux, "POST /register_user_with_stake", s.handleRegisterUserWithStake())
	s.handle(mux, "POST /create_channel_with_fee", s.handleCreateChannelWithFee())
	s.handle(mux, "GET /status/{id}", s.handleBridgeStatus())
	s.handle(mux, "GET /user_transactions/{userId}", s.handleBridgeUserTransactions())

	// JSON-RPC surface
	s.handle(mux, "POST /rpc", s.handleRPC())

	// Devnet control
	s.handle(mux, "POST /devnet/advance_block", s.handleAdvanceBlock())

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("starting devnet server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("devnet server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleChatSubmit accepts any chat-chain operation body and records a
// pending transaction attributed to the sender field named by senderKey.
func (s *Server) handleChatSubmit(txType, senderKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeBody(w, r, s.logger)
		if !ok {
			return
		}
		sender, _ := body[senderKey].(string)
		if sender == "" {
			writeError(w, fmt.Sprintf("%s is required", senderKey), http.StatusBadRequest)
			return
		}
		tx := s.chat.Submit(txType, sender, "", 0, body, "")
		s.logger.Debug("chat transaction accepted", "tx_type", txType, "tx_id", tx.ID, "sender", sender)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleReputation() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userId")
		// Base score plus one point per confirmed chat transaction.
		score := int64(50)
		for _, tx := range s.chat.BySender(userID) {
			if tx.Status == chain.TxStatusConfirmed {
				score++
			}
		}
		writeJSON(w, map[string]int64{"reputation": score}, http.StatusOK)
	})
}

func (s *Server) handleChainTransactions(state *ChainState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txs := state.BySender(r.PathValue("userId"))
		if txs == nil {
			txs = []*chain.Transaction{}
		}
		writeJSON(w, txs, http.StatusOK)
	})
}

func (s *Server) handleChainTransaction(state *ChainState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tx := state.Get(r.PathValue("txId"))
		if tx == nil {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleCreateWallet() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID         string `json:"user_id"`
			InitialBalance int64  `json:"initial_balance"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		wallet, err := s.wallets.Create(req.UserID, req.InitialBalance)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"wallet": wallet}, http.StatusOK)
	})
}

func (s *Server) handleGetWallet() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := s.wallets.Get(r.PathValue("userId"))
		if wallet == nil {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}
		writeJSON(w, wallet, http.StatusOK)
	})
}

func (s *Server) handleTransfer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Amount int64  `json:"amount"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		execErr := s.wallets.Transfer(req.From, req.To, req.Amount)
		tx := s.currency.Submit(chain.CurrencyTxPayment, req.From, req.To, req.Amount, nil, execErr)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleStake() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
			Amount int64  `json:"amount"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		execErr := s.wallets.Stake(req.UserID, req.Amount)
		tx := s.currency.Submit(chain.CurrencyTxStake, req.UserID, "", req.Amount, nil, execErr)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleUnstake() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
			Amount int64  `json:"amount"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		execErr := s.wallets.Unstake(req.UserID, req.Amount)
		tx := s.currency.Submit(chain.CurrencyTxUnstake, req.UserID, "", req.Amount, nil, execErr)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleClaimRewards() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		claimed, execErr := s.wallets.ClaimRewards(req.UserID)
		tx := s.currency.Submit(chain.CurrencyTxReward, req.UserID, "", claimed, nil, execErr)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleRegisterUserWithStake() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID      string `json:"user_id"`
			PublicKey   string `json:"public_key"`
			StakeAmount int64  `json:"stake_amount"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		if req.UserID == "" {
			writeError(w, "user_id is required", http.StatusBadRequest)
			return
		}

		if _, err := s.wallets.Create(req.UserID, req.StakeAmount*2); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		chatTx := s.chat.Submit(chain.ChatTxRegisterUser, req.UserID, "", 0, map[string]any{
			"public_key": req.PublicKey,
			"timestamp":  time.Now().Unix(),
		}, "")
		execErr := s.wallets.Stake(req.UserID, req.StakeAmount)
		stakeTx := s.currency.Submit(chain.CurrencyTxStake, req.UserID, "", req.StakeAmount, nil, execErr)

		tx := &bridge.Transaction{
			ID:              uuid.New().String(),
			Operation:       bridge.OpRegisterUserWithStake,
			UserID:          req.UserID,
			ChatChainTx:     chatTx.ID,
			CurrencyChainTx: stakeTx.ID,
			Status:          bridge.StatusPending,
			CreatedAt:       time.Now().Unix(),
		}
		s.bridge.put(tx)
		s.logger.Debug("bridge operation accepted",
			"operation", tx.Operation,
			"bridge_tx_id", tx.ID,
			"chat_tx", tx.ChatChainTx,
			"currency_tx", tx.CurrencyChainTx,
		)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleCreateChannelWithFee() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Owner       string `json:"owner"`
			ChannelName string `json:"channel_name"`
			CreationFee int64  `json:"creation_fee"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		if req.Owner == "" {
			writeError(w, "owner is required", http.StatusBadRequest)
			return
		}

		execErr := s.wallets.Transfer(req.Owner, "treasury", req.CreationFee)
		feeTx := s.currency.Submit(chain.CurrencyTxPayment, req.Owner, "treasury", req.CreationFee, nil, execErr)
		chatTx := s.chat.Submit(chain.ChatTxCreateChannel, req.Owner, "", 0, map[string]any{
			"channel_id": uuid.New().String(),
			"name":       req.ChannelName,
			"timestamp":  time.Now().Unix(),
		}, "")

		tx := &bridge.Transaction{
			ID:              uuid.New().String(),
			Operation:       bridge.OpCreateChannelWithFee,
			UserID:          req.Owner,
			ChatChainTx:     chatTx.ID,
			CurrencyChainTx: feeTx.ID,
			Status:          bridge.StatusPending,
			CreatedAt:       time.Now().Unix(),
		}
		s.bridge.put(tx)
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleBridgeStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.settleBridge()
		tx := s.bridge.get(r.PathValue("id"))
		if tx == nil {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		writeJSON(w, tx, http.StatusOK)
	})
}

func (s *Server) handleBridgeUserTransactions() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.settleBridge()
		txs := s.bridge.byUser(r.PathValue("userId"))
		if txs == nil {
			txs = []*bridge.Transaction{}
		}
		writeJSON(w, txs, http.StatusOK)
	})
}

func (s *Server) handleAdvanceBlock() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Blocks int64 `json:"blocks"`
		}
		if !decodeInto(w, r, &req, s.logger) {
			return
		}
		if req.Blocks <= 0 {
			req.Blocks = 1
		}
		chatBlock, currencyBlock := s.AdvanceBlock(req.Blocks)
		writeJSON(w, map[string]int64{
			"chat_block":     chatBlock,
			"currency_block": currencyBlock,
		}, http.StatusOK)
	})
}

// settleBridge resolves every pending bridge record whose legs have
// reached terminal states. One confirmed leg plus one failed leg yields
// rolled_back after a compensating transaction is recorded on the
// surviving leg's chain; two failed legs yield failed.
func (s *Server) settleBridge() {
	s.bridge.mu.Lock()
	ids := make([]string, 0, len(s.bridge.txs))
	for id := range s.bridge.txs {
		ids = append(ids, id)
	}
	s.bridge.mu.Unlock()

	for _, id := range ids {
		tx := s.bridge.get(id)
		if tx == nil || tx.Status.Terminal() {
			continue
		}

		chatLeg := s.chat.Get(tx.ChatChainTx)
		currencyLeg := s.currency.Get(tx.CurrencyChainTx)
		if chatLeg == nil || currencyLeg == nil {
			continue
		}

		chatConfirmed := chatLeg.Status == chain.TxStatusConfirmed
		chatFailed := chatLeg.Status == chain.TxStatusFailed
		currencyConfirmed := currencyLeg.Status == chain.TxStatusConfirmed
		currencyFailed := currencyLeg.Status == chain.TxStatusFailed

		switch {
		case chatConfirmed && currencyConfirmed:
			s.finalizeBridge(id, bridge.StatusAtomicSuccess, "")
		case chatConfirmed && currencyFailed:
			s.compensateChat(tx)
			s.finalizeBridge(id, bridge.StatusRolledBack, currencyLeg.Error)
		case currencyConfirmed && chatFailed:
			s.compensateCurrency(tx)
			s.finalizeBridge(id, bridge.StatusRolledBack, chatLeg.Error)
		case chatFailed && currencyFailed:
			s.finalizeBridge(id, bridge.StatusFailed, chatLeg.Error)
		case chatConfirmed && !currencyFailed:
			s.bridge.update(id, func(tx *bridge.Transaction) {
				if tx.Status == bridge.StatusPending {
					tx.Status = bridge.StatusChatChainConfirmed
				}
			})
		case currencyConfirmed && !chatFailed:
			s.bridge.update(id, func(tx *bridge.Transaction) {
				if tx.Status == bridge.StatusPending {
					tx.Status = bridge.StatusCurrencyChainConfirmed
				}
			})
		}
	}
}

func (s *Server) finalizeBridge(id string, status bridge.CrossChainStatus, errMsg string) {
	s.bridge.update(id, func(tx *bridge.Transaction) {
		if tx.Status.Terminal() {
			return
		}
		tx.Status = status
		if errMsg != "" {
			tx.Error = errMsg
		}
		now := time.Now().Unix()
		tx.FinalizedAt = &now
	})
}

// compensateChat records the reversal of a confirmed chat leg.
func (s *Server) compensateChat(tx *bridge.Transaction) {
	switch tx.Operation {
	case bridge.OpRegisterUserWithStake:
		s.chat.Submit(chain.ChatTxRevokeUser, tx.UserID, "", 0, map[string]any{
			"reason": "currency leg failed",
		}, "")
	case bridge.OpCreateChannelWithFee:
		s.chat.Submit(chain.ChatTxRevokeUser, tx.UserID, "", 0, map[string]any{
			"reason": "fee leg failed",
		}, "")
	}
}

// compensateCurrency records the reversal of a confirmed currency leg.
func (s *Server) compensateCurrency(tx *bridge.Transaction) {
	leg := s.currency.Get(tx.CurrencyChainTx)
	if leg == nil {
		return
	}
	switch tx.Operation {
	case bridge.OpRegisterUserWithStake:
		s.wallets.Unstake(tx.UserID, leg.Amount)
		s.currency.Submit(chain.CurrencyTxUnstake, tx.UserID, "", leg.Amount, nil, "")
	case bridge.OpCreateChannelWithFee:
		s.wallets.Transfer("treasury", tx.UserID, leg.Amount)
		s.currency.Submit(chain.CurrencyTxPayment, "treasury", tx.UserID, leg.Amount, nil, "")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, map[string]string{"error": msg}, status)
}

// decodeBody decodes a free-form JSON object body.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (map[string]any, bool) {
	var body map[string]any
	if !decodeInto(w, r, &body, logger) {
		return nil, false
	}
	return body, true
}

// decodeInto decodes the request body into v, bounding the body size.
func decodeInto(w http.ResponseWriter, r *http.Request, v any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug("invalid request body", "error", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// txHash derives a stable pseudo-hash for a transaction id on the JSON-RPC
// surface.
func txHash(txID string) string {
	sum := sha256.Sum256([]byte(txID))
	return fmt.Sprintf("0x%x", sum[:16])
}
