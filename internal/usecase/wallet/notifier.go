package wallet

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// BalanceUpdate is the payload pushed to websocket subscribers whenever
// a ledger entry commits against the user's wallet.
type BalanceUpdate struct {
	WalletID string `json:"wallet_id"`
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Notifier fans balance updates out to the websocket connections a user
// has open. A user may hold several connections (multiple tabs).
type Notifier struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]bool
	logger  *zap.Logger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{
		clients: make(map[string]map[*websocket.Conn]bool),
		logger:  logger,
	}
}

func (n *Notifier) Register(userID string, conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.clients[userID] == nil {
		n.clients[userID] = make(map[*websocket.Conn]bool)
	}
	n.clients[userID][conn] = true
	n.logger.Debug("websocket registered", zap.String("user_id", userID))
}

func (n *Notifier) Unregister(userID string, conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if conns, ok := n.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(n.clients, userID)
		}
	}
}

// NotifyBalance writes the update to every connection the user holds.
// The mutex is held across the writes: gorilla connections allow only
// one concurrent writer, and concurrent settlements for the same user
// would otherwise interleave frames. Dead connections are dropped.
func (n *Notifier) NotifyBalance(userID string, update BalanceUpdate) {
	msg := wsMessage{Type: "balance_update", Data: update}

	n.mu.Lock()
	defer n.mu.Unlock()
	conns := n.clients[userID]
	for conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			n.logger.Debug("websocket write failed, dropping connection",
				zap.String("user_id", userID),
				zap.Error(err))
			conn.Close()
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(n.clients, userID)
	}
}
