package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"ethfolio/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHoldingDisplayBalance(t *testing.T) {
	raw, _ := new(big.Int).SetString("1000000000000000000", 10)
	dai := TokenHolding{Symbol: "DAI", Decimals: 18, RawBalance: raw}
	assert.Equal(t, "1.00", dai.DisplayBalance(2))
	assert.Equal(t, "1.0000", dai.DisplayBalance(4))

	assert.Equal(t, "0.00", TokenHolding{}.DisplayBalance(2))
}

func TestTokenHoldingJSON(t *testing.T) {
	raw, _ := new(big.Int).SetString("123456789012345678901234", 10)
	data, err := json.Marshal(TokenHolding{ContractAddress: "0xdai", RawBalance: raw, Decimals: 18, Symbol: "DAI"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"raw_balance":"123456789012345678901234"`)

	var back TokenHolding
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 0, raw.Cmp(back.RawBalance))
	assert.Equal(t, "123,456.79", utils.AddCommas(back.DisplayBalance(2)))

	data, err = json.Marshal(TokenHolding{})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"raw_balance":"0"`)

	assert.Error(t, json.Unmarshal([]byte(`{"raw_balance":"1e18"}`), &back))
}

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		input    string
		expected Network
		wantErr  bool
	}{
		{"eth-mainnet", EthMainnet, false},
		{"Goerli", EthGoerli, false},
		{" SEPOLIA ", EthSepolia, false},
		{"polygon-mainnet", "", true},
	}

	for _, tt := range tests {
		got, err := ParseNetwork(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}
}

func TestNetworkNext(t *testing.T) {
	assert.Equal(t, EthGoerli, EthMainnet.Next())
	assert.Equal(t, EthSepolia, EthGoerli.Next())
	assert.Equal(t, EthMainnet, EthSepolia.Next())
	assert.Equal(t, EthMainnet, Network("bogus").Next())
	assert.True(t, EthMainnet.IsMain())
	assert.False(t, EthSepolia.IsMain())
}

func TestLoadErrorKind(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("load tokens: %w", NewLoadError(FailureUpstream, "get token balances", base))

	assert.True(t, IsKind(err, FailureUpstream))
	assert.False(t, IsKind(err, FailureInput))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, FailureKind(""), KindOf(base))
	assert.False(t, IsKind(nil, FailureUpstream))
	assert.Contains(t, err.Error(), "get token balances: boom")
}
