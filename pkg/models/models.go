package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"ethfolio/pkg/utils"
)

// TokenHolding is an ERC-20 balance merged with its metadata.
type TokenHolding struct {
	ContractAddress string   `json:"contract_address"`
	RawBalance      *big.Int `json:"raw_balance"`
	Decimals        int      `json:"decimals"`
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	Logo            string   `json:"logo,omitempty"`
}

// DisplayBalance scales the raw balance by the token decimals and rounds to places.
func (t TokenHolding) DisplayBalance(places int32) string {
	return utils.FormatUnits(t.RawBalance, t.Decimals, places)
}

type tokenHoldingJSON struct {
	ContractAddress string `json:"contract_address"`
	RawBalance      string `json:"raw_balance"`
	Decimals        int    `json:"decimals"`
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	Logo            string `json:"logo,omitempty"`
}

// MarshalJSON writes the raw balance as a decimal string so JSON clients keep every digit.
func (t TokenHolding) MarshalJSON() ([]byte, error) {
	raw := "0"
	if t.RawBalance != nil {
		raw = t.RawBalance.String()
	}
	return json.Marshal(tokenHoldingJSON{
		ContractAddress: t.ContractAddress,
		RawBalance:      raw,
		Decimals:        t.Decimals,
		Symbol:          t.Symbol,
		Name:            t.Name,
		Logo:            t.Logo,
	})
}

func (t *TokenHolding) UnmarshalJSON(data []byte) error {
	var v tokenHoldingJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	raw := new(big.Int)
	if v.RawBalance != "" {
		if _, ok := raw.SetString(v.RawBalance, 10); !ok {
			return fmt.Errorf("invalid raw_balance %q", v.RawBalance)
		}
	}
	*t = TokenHolding{
		ContractAddress: v.ContractAddress,
		RawBalance:      raw,
		Decimals:        v.Decimals,
		Symbol:          v.Symbol,
		Name:            v.Name,
		Logo:            v.Logo,
	}
	return nil
}

// NFTMedia references one media entry of an NFT.
type NFTMedia struct {
	Raw       string `json:"raw,omitempty"`
	Gateway   string `json:"gateway,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Format    string `json:"format,omitempty"`
}

// NFTItem is the display record of an owned NFT.
type NFTItem struct {
	ContractAddress string    `json:"contract_address"`
	Title           string    `json:"title"`
	Symbol          string    `json:"symbol"`
	Media           *NFTMedia `json:"media,omitempty"`
	TokenID         string    `json:"token_id"`
}

// RawTokenBalance is one entry of the upstream token balance list.
type RawTokenBalance struct {
	ContractAddress string
	Balance         *big.Int
}

// TokenMetadata is the upstream metadata of an ERC-20 contract.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals int
	Logo     string
}

// RawNFT is an owned NFT as returned by the upstream, before projection.
type RawNFT struct {
	ContractAddress string
	ContractName    string
	ContractSymbol  string
	Title           string
	TokenID         string
	Media           []NFTMedia
}

// NFTQuery holds options for an owned-NFT lookup.
type NFTQuery struct {
	ExcludeSpam bool
}

// NetworkResult holds self-test results for one network.
type NetworkResult struct {
	Network string        `json:"network"`
	Status  string        `json:"status"` // "ok" or "error"
	ChainID int64         `json:"chain_id,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// TestReport holds the results of the configuration self-test.
type TestReport struct {
	ConfigPath    string          `json:"config_path"`
	APIKeyPresent bool            `json:"api_key_present"`
	Networks      []NetworkResult `json:"networks,omitempty"`
	Failed        bool            `json:"failed"`
}
