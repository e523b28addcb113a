package models

import (
	"fmt"
	"strings"
)

// Network identifies one of the supported upstream networks.
type Network string

const (
	EthMainnet Network = "eth-mainnet"
	EthGoerli  Network = "eth-goerli"
	EthSepolia Network = "eth-sepolia"
)

var networks = []Network{EthMainnet, EthGoerli, EthSepolia}

// Networks returns the supported networks in selector order.
func Networks() []Network {
	out := make([]Network, len(networks))
	copy(out, networks)
	return out
}

// ParseNetwork accepts a network id or its label, case-insensitively.
func ParseNetwork(s string) (Network, error) {
	s = strings.TrimSpace(s)
	for _, n := range networks {
		if strings.EqualFold(s, string(n)) || strings.EqualFold(s, n.Label()) {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// IsMain reports whether n is the main network. Only the main network supports spam filtering.
func (n Network) IsMain() bool {
	return n == EthMainnet
}

// Label is the short name shown in the network selector.
func (n Network) Label() string {
	switch n {
	case EthMainnet:
		return "Mainnet"
	case EthGoerli:
		return "Goerli"
	case EthSepolia:
		return "Sepolia"
	}
	return string(n)
}

// Next returns the network after n in selector order, wrapping around.
func (n Network) Next() Network {
	for i, c := range networks {
		if c == n {
			return networks[(i+1)%len(networks)]
		}
	}
	return EthMainnet
}
