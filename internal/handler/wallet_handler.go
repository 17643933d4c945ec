package handler

import (
	"net/http"

	"checkout-service/internal/auth"
	"checkout-service/internal/usecase/wallet"
	"checkout-service/pkg/response"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletUC *wallet.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWalletHandler(walletUC *wallet.Service, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		walletUC: walletUC,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens in middleware; the storefront origin is
			// enforced at the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	balance, err := h.walletUC.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error("wallet balance lookup failed",
			zap.String("user_id", userID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, balance)
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 50)
	entries, err := h.walletUC.Ledger(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("wallet ledger listing failed",
			zap.String("user_id", userID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, entries)
}

// Subscribe upgrades to a websocket and streams balance updates until
// the client disconnects.
func (h *WalletHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	notifier := h.walletUC.Notifier()
	notifier.Register(userID, conn)
	defer func() {
		notifier.Unregister(userID, conn)
		conn.Close()
	}()

	// Drain the connection so close frames and pings are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
