package wallet

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ethfolio/pkg/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

//go:embed bridge.html
var bridgePage []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errDetached = errors.New("wallet page disconnected")

const (
	msgHello           = "hello"
	msgRequest         = "request"
	msgResponse        = "response"
	msgAccountsChanged = "accountsChanged"
)

type message struct {
	Type      string   `json:"type"`
	ID        uint64   `json:"id,omitempty"`
	Method    string   `json:"method,omitempty"`
	Available bool     `json:"available,omitempty"`
	Accounts  []string `json:"accounts,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// pendingCall is a request awaiting its response on the page it was sent to.
type pendingCall struct {
	conn *websocket.Conn
	ch   chan message
}

// Bridge is a Provider backed by a browser page that relays window.ethereum over a websocket.
// Only the most recently attached page is used. With no page attached the wallet is unavailable.
type Bridge struct {
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	available bool
	nextID    uint64
	pending   map[uint64]pendingCall
	nextSub   uint64
	listeners map[uint64]func([]string)

	writeMu sync.Mutex
}

func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		logger:    logger.Named("bridge"),
		pending:   make(map[uint64]pendingCall),
		listeners: make(map[uint64]func([]string)),
	}
}

func (b *Bridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.available
}

func (b *Bridge) Accounts(ctx context.Context) ([]string, error) {
	return b.call(ctx, "eth_accounts")
}

func (b *Bridge) RequestAccounts(ctx context.Context) ([]string, error) {
	return b.call(ctx, "eth_requestAccounts")
}

func (b *Bridge) OnAccountsChanged(fn func([]string)) Subscription {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.listeners[id] = fn
	b.mu.Unlock()

	return subscriptionFunc(func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	})
}

// PageHandler serves the bridge page.
func (b *Bridge) PageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(bridgePage)
	})
}

// ServeHTTP accepts the websocket of a bridge page.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Bridge upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	b.attach(conn)
	defer b.detach(conn)

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Debug("Bridge read ended", zap.Error(err))
			}
			return
		}
		b.handle(conn, msg)
	}
}

func (b *Bridge) attach(conn *websocket.Conn) {
	b.mu.Lock()
	prev := b.conn
	b.conn = conn
	b.available = false
	b.mu.Unlock()

	if prev != nil {
		b.failPending(prev)
		_ = prev.Close()
	}
	b.logger.Info("Wallet page attached", zap.String("remote", conn.RemoteAddr().String()))
}

func (b *Bridge) detach(conn *websocket.Conn) {
	b.failPending(conn)

	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.available = false
	b.mu.Unlock()

	b.logger.Info("Wallet page detached")
	b.dispatch(nil)
}

// failPending fails every request still waiting on conn.
func (b *Bridge) failPending(conn *websocket.Conn) {
	b.mu.Lock()
	var failed []chan message
	for id, p := range b.pending {
		if p.conn == conn {
			failed = append(failed, p.ch)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, ch := range failed {
		ch <- message{Type: msgResponse, Error: errDetached.Error()}
	}
}

func (b *Bridge) handle(conn *websocket.Conn, msg message) {
	switch msg.Type {
	case msgHello:
		b.mu.Lock()
		current := b.conn == conn
		if current {
			b.available = msg.Available
		}
		b.mu.Unlock()
		if !current {
			return
		}

		b.logger.Info("Wallet page hello", zap.Bool("available", msg.Available))
		if !msg.Available {
			b.dispatch(nil)
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			accounts, err := b.Accounts(ctx)
			if err != nil {
				b.logger.Warn("Failed to read accounts after hello", zap.Error(err))
				return
			}
			b.dispatch(accounts)
		}()

	case msgResponse:
		b.mu.Lock()
		p, ok := b.pending[msg.ID]
		if ok && p.conn == conn {
			delete(b.pending, msg.ID)
		} else {
			ok = false
		}
		b.mu.Unlock()
		if ok {
			p.ch <- msg
		}

	case msgAccountsChanged:
		b.dispatch(msg.Accounts)

	default:
		b.logger.Debug("Unknown bridge message", zap.String("type", msg.Type))
	}
}

func (b *Bridge) dispatch(accounts []string) {
	b.mu.Lock()
	fns := make([]func([]string), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(accounts)
	}
}

func (b *Bridge) call(ctx context.Context, method string) ([]string, error) {
	b.mu.Lock()
	if b.conn == nil || !b.available {
		b.mu.Unlock()
		return nil, models.NewLoadError(models.FailureCapability, method, ErrNoWallet)
	}
	b.nextID++
	id := b.nextID
	ch := make(chan message, 1)
	conn := b.conn
	b.pending[id] = pendingCall{conn: conn, ch: ch}
	b.mu.Unlock()

	b.writeMu.Lock()
	err := conn.WriteJSON(message{Type: msgRequest, ID: id, Method: method})
	b.writeMu.Unlock()
	if err != nil {
		b.forget(id)
		return nil, fmt.Errorf("%s: write request: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("%s: %s", method, resp.Error)
		}
		return resp.Accounts, nil
	case <-ctx.Done():
		b.forget(id)
		return nil, ctx.Err()
	}
}

// pendingCount is the number of requests awaiting a response.
func (b *Bridge) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
