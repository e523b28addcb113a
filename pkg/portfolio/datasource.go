package portfolio

import (
	"context"
	"math/big"

	"ethfolio/pkg/models"
)

// DataSource is an upstream client bound to one network.
type DataSource interface {
	GetBalance(ctx context.Context, owner string) (*big.Int, error)
	GetTokenBalances(ctx context.Context, owner string) ([]models.RawTokenBalance, error)
	GetTokenMetadata(ctx context.Context, contract string) (models.TokenMetadata, error)
	GetNFTsForOwner(ctx context.Context, owner string, q models.NFTQuery) ([]models.RawNFT, error)
	Close()
}

// Dialer binds a DataSource to a network.
type Dialer interface {
	Dial(ctx context.Context, network models.Network) (DataSource, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, network models.Network) (DataSource, error)

func (f DialerFunc) Dial(ctx context.Context, network models.Network) (DataSource, error) {
	return f(ctx, network)
}
