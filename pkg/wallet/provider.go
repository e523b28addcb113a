package wallet

import (
	"context"
	"errors"
)

// ErrNoWallet is reported when a connect is attempted without a wallet extension.
var ErrNoWallet = errors.New("no wallet detected: install a browser wallet extension such as MetaMask and open the wallet page")

// Subscription is a registered account-change listener.
type Subscription interface {
	Unsubscribe()
}

// Provider is a browser wallet extension.
type Provider interface {
	// Available reports whether an extension is present.
	Available() bool
	// Accounts returns the already authorized accounts without prompting the user.
	Accounts(ctx context.Context) ([]string, error)
	// RequestAccounts asks the user to authorize accounts.
	RequestAccounts(ctx context.Context) ([]string, error)
	// OnAccountsChanged registers fn for account-change notifications until the subscription is released.
	OnAccountsChanged(fn func(accounts []string)) Subscription
}

type subscriptionFunc func()

func (f subscriptionFunc) Unsubscribe() { f() }
