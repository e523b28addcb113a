package portfolio

import (
	"context"
	"fmt"

	"ethfolio/pkg/models"
	"ethfolio/pkg/utils"

	"golang.org/x/sync/errgroup"
)

// LoadBalance fetches the native balance of owner and formats it with places fractional digits.
func LoadBalance(ctx context.Context, ds DataSource, owner string, places int32) (string, error) {
	wei, err := ds.GetBalance(ctx, owner)
	if err != nil {
		return "", upstreamErr("load balance", err)
	}
	return utils.FormatEther(wei, places), nil
}

// LoadTokens fetches the token balances of owner and merges each with its metadata.
// Metadata lookups run concurrently and never cancel each other; an entry whose
// lookup failed is left out, the rest keep their original order.
// limit caps concurrent lookups; zero or less means no cap.
func LoadTokens(ctx context.Context, ds DataSource, owner string, limit int) ([]models.TokenHolding, error) {
	balances, err := ds.GetTokenBalances(ctx, owner)
	if err != nil {
		return nil, upstreamErr("load tokens", err)
	}

	type outcome struct {
		meta models.TokenMetadata
		err  error
	}
	outcomes := make([]outcome, len(balances))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, b := range balances {
		i, contract := i, b.ContractAddress
		g.Go(func() error {
			meta, err := ds.GetTokenMetadata(ctx, contract)
			outcomes[i] = outcome{meta: meta, err: err}
			return nil
		})
	}
	_ = g.Wait()

	holdings := make([]models.TokenHolding, 0, len(balances))
	for i, o := range outcomes {
		if o.err != nil {
			continue
		}
		holdings = append(holdings, models.TokenHolding{
			ContractAddress: balances[i].ContractAddress,
			RawBalance:      balances[i].Balance,
			Decimals:        o.meta.Decimals,
			Symbol:          o.meta.Symbol,
			Name:            o.meta.Name,
			Logo:            o.meta.Logo,
		})
	}
	return holdings, nil
}

// LoadNFTs fetches the NFTs owned by owner. Spam filtering is requested only on the main network.
func LoadNFTs(ctx context.Context, ds DataSource, network models.Network, owner string) ([]models.NFTItem, error) {
	raw, err := ds.GetNFTsForOwner(ctx, owner, models.NFTQuery{ExcludeSpam: network.IsMain()})
	if err != nil {
		return nil, upstreamErr("load nfts", err)
	}

	items := make([]models.NFTItem, 0, len(raw))
	for _, n := range raw {
		items = append(items, ProjectNFT(n))
	}
	return items, nil
}

// ProjectNFT turns an upstream NFT into its display record.
func ProjectNFT(n models.RawNFT) models.NFTItem {
	item := models.NFTItem{
		ContractAddress: n.ContractAddress,
		Title:           n.ContractName,
		Symbol:          n.ContractSymbol,
		TokenID:         n.TokenID,
	}
	if item.Title == "" {
		item.Title = n.Title
	}
	if len(n.Media) > 0 {
		m := n.Media[0]
		item.Media = &m
	}
	return item
}

func upstreamErr(op string, err error) error {
	if models.KindOf(err) != "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return models.NewLoadError(models.FailureUpstream, op, err)
}
