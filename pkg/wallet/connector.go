package wallet

import (
	"context"
	"strings"
	"sync"
	"time"

	"ethfolio/pkg/address"
	"ethfolio/pkg/models"

	"go.uber.org/zap"
)

// connectTimeout bounds how long an account request waits for the user to approve it.
var connectTimeout = 2 * time.Minute

// Connector tracks the connected wallet account. It never loads portfolio data;
// it only supplies an address the caller may choose to view.
type Connector struct {
	provider Provider
	logger   *zap.Logger

	mu      sync.RWMutex
	current string
	updates chan string
}

func NewConnector(p Provider, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		provider: p,
		logger:   logger.Named("wallet"),
		updates:  make(chan string, 16),
	}
}

// Start reads the already authorized accounts and listens for account changes.
// The listener stays registered until the returned release func is called.
func (c *Connector) Start(ctx context.Context) (release func()) {
	sub := c.provider.OnAccountsChanged(c.setAccounts)

	if c.provider.Available() {
		accounts, err := c.provider.Accounts(ctx)
		if err != nil {
			c.logger.Warn("Failed to read authorized accounts", zap.Error(err))
		} else {
			c.setAccounts(accounts)
		}
	} else {
		c.logger.Info("No wallet extension present")
	}

	return sync.OnceFunc(sub.Unsubscribe)
}

// Current returns the connected account, if any.
func (c *Connector) Current() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current != ""
}

// Connect asks the extension to authorize accounts and returns without waiting for
// the answer; the resulting account arrives through the change notifications.
func (c *Connector) Connect(ctx context.Context) error {
	if !c.provider.Available() {
		return models.NewLoadError(models.FailureCapability, "connect wallet", ErrNoWallet)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
	go func() {
		defer cancel()
		if _, err := c.provider.RequestAccounts(ctx); err != nil {
			c.logger.Warn("Account request failed", zap.Error(err))
		}
	}()
	return nil
}

// Updates delivers the connected account each time it changes ("" when disconnected).
func (c *Connector) Updates() <-chan string {
	return c.updates
}

func (c *Connector) setAccounts(accounts []string) {
	next := ""
	if len(accounts) > 0 {
		next = strings.TrimSpace(accounts[0])
		if normalized, err := address.Normalize(next); err == nil {
			next = normalized
		}
	}

	c.mu.Lock()
	changed := next != c.current
	c.current = next
	c.mu.Unlock()

	if !changed {
		return
	}
	c.logger.Info("Connected account changed", zap.String("address", next))
	select {
	case c.updates <- next:
	default:
		c.logger.Warn("Dropping wallet update for slow reader", zap.String("address", next))
	}
}
