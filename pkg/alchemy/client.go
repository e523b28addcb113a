package alchemy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"ethfolio/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const DefaultEndpoint = "https://%s.g.alchemy.com"

// Options configures access to the Alchemy API.
type Options struct {
	APIKey string
	// Endpoint is a URL template with one %s for the network id.
	Endpoint string
	// Timeout bounds every HTTP request; zero leaves the client defaults in place.
	Timeout time.Duration
}

// Dialer creates network-bound clients sharing one instrumented HTTP client.
type Dialer struct {
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDialer(opts Options, logger *zap.Logger) *Dialer {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		opts: opts,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: NewRequestWatcher("alchemy", nil),
		},
		logger: logger.Named("alchemy"),
	}
}

// Dial binds a client to network.
func (d *Dialer) Dial(ctx context.Context, network models.Network) (*Client, error) {
	base := strings.TrimRight(fmt.Sprintf(d.opts.Endpoint, string(network)), "/")
	rpcURL := fmt.Sprintf("%s/v2/%s", base, d.opts.APIKey)

	rc, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(d.httpClient))
	if err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "dial "+string(network), err)
	}

	return &Client{
		network:    network,
		rpc:        rc,
		eth:        ethclient.NewClient(rc),
		httpClient: d.httpClient,
		nftURL:     fmt.Sprintf("%s/nft/v2/%s", base, d.opts.APIKey),
		logger:     d.logger.With(zap.String("network", string(network))),
	}, nil
}

// Client talks to the Alchemy API for a single network.
type Client struct {
	network    models.Network
	rpc        *rpc.Client
	eth        *ethclient.Client
	httpClient *http.Client
	nftURL     string
	logger     *zap.Logger
}

func (c *Client) Network() models.Network {
	return c.network
}

func (c *Client) Close() {
	c.rpc.Close()
}

func withAlias(ctx context.Context, alias string) context.Context {
	h := http.Header{}
	h.Set(aliasHeader, alias)
	return rpc.NewContextWithHeaders(ctx, h)
}

// GetBalance returns the native balance of owner in wei.
func (c *Client) GetBalance(ctx context.Context, owner string) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(withAlias(ctx, "eth_getBalance"), common.HexToAddress(owner), nil)
	if err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get balance", err)
	}
	return bal, nil
}

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    *string `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

// GetTokenBalances lists the ERC-20 balances held by owner.
func (c *Client) GetTokenBalances(ctx context.Context, owner string) ([]models.RawTokenBalance, error) {
	const method = "alchemy_getTokenBalances"

	var res tokenBalancesResult
	if err := c.rpc.CallContext(withAlias(ctx, method), &res, method, owner, "erc20"); err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get token balances", err)
	}

	out := make([]models.RawTokenBalance, 0, len(res.TokenBalances))
	for _, tb := range res.TokenBalances {
		bal := new(big.Int)
		if tb.TokenBalance != nil {
			if v, ok := parseQuantity(*tb.TokenBalance); ok {
				bal = v
			} else {
				c.logger.Debug("Unparseable token balance",
					zap.String("contract", tb.ContractAddress), zap.String("raw", *tb.TokenBalance))
			}
		}
		out = append(out, models.RawTokenBalance{
			ContractAddress: tb.ContractAddress,
			Balance:         bal,
		})
	}
	return out, nil
}

type tokenMetadataResult struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals *int    `json:"decimals"`
	Logo     *string `json:"logo"`
}

// GetTokenMetadata returns name, symbol, decimals and logo of an ERC-20 contract.
func (c *Client) GetTokenMetadata(ctx context.Context, contract string) (models.TokenMetadata, error) {
	const method = "alchemy_getTokenMetadata"

	var res tokenMetadataResult
	if err := c.rpc.CallContext(withAlias(ctx, method), &res, method, contract); err != nil {
		return models.TokenMetadata{}, models.NewLoadError(models.FailureUpstream, "get token metadata "+contract, err)
	}
	return models.TokenMetadata{
		Name:     deref(res.Name),
		Symbol:   deref(res.Symbol),
		Decimals: derefInt(res.Decimals),
		Logo:     deref(res.Logo),
	}, nil
}

type ownedNFTsResponse struct {
	OwnedNFTs []struct {
		Contract struct {
			Address string `json:"address"`
		} `json:"contract"`
		ID struct {
			TokenID string `json:"tokenId"`
		} `json:"id"`
		Title            string            `json:"title"`
		Media            []models.NFTMedia `json:"media"`
		ContractMetadata struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"contractMetadata"`
	} `json:"ownedNfts"`
	TotalCount int    `json:"totalCount"`
	PageKey    string `json:"pageKey"`
}

// GetNFTsForOwner returns the first page of NFTs owned by owner.
func (c *Client) GetNFTsForOwner(ctx context.Context, owner string, q models.NFTQuery) ([]models.RawNFT, error) {
	params := [][2]string{
		{"owner", owner},
		{"withMetadata", "true"},
	}
	if q.ExcludeSpam {
		params = append(params, [2]string{"excludeFilters[]", "SPAM"})
	}

	req, err := c.buildRequest(ctx, http.MethodGet, "getNFTs", "getNFTs", params)
	if err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get nfts", fmt.Errorf("build request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get nfts", fmt.Errorf("request do: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get nfts", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewLoadError(models.FailureUpstream, "get nfts",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var data ownedNFTsResponse
	if err = json.Unmarshal(body, &data); err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get nfts", fmt.Errorf("unmarshal body: %w", err))
	}
	if data.PageKey != "" {
		c.logger.Debug("NFT result truncated to first page", zap.String("owner", owner), zap.Int("total", data.TotalCount))
	}

	out := make([]models.RawNFT, 0, len(data.OwnedNFTs))
	for _, n := range data.OwnedNFTs {
		out = append(out, models.RawNFT{
			ContractAddress: n.Contract.Address,
			ContractName:    n.ContractMetadata.Name,
			ContractSymbol:  n.ContractMetadata.Symbol,
			Title:           n.Title,
			TokenID:         tokenIDString(n.ID.TokenID),
			Media:           n.Media,
		})
	}
	return out, nil
}

// ChainID is used by the self-test.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(withAlias(ctx, "eth_chainId"))
	if err != nil {
		return nil, models.NewLoadError(models.FailureUpstream, "get chain id", err)
	}
	return id, nil
}

func (c *Client) buildRequest(ctx context.Context, method, subURL, alias string, params [][2]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s/%s", c.nftURL, subURL), nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for _, p := range params {
		q.Add(p[0], p[1])
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(aliasHeader, alias)

	return req, nil
}

// parseQuantity parses a hex quantity that may carry leading zero padding.
func parseQuantity(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 16)
}

// tokenIDString renders hex token ids in decimal, leaving anything else untouched.
func tokenIDString(id string) string {
	if !strings.HasPrefix(id, "0x") && !strings.HasPrefix(id, "0X") {
		return id
	}
	v, ok := parseQuantity(id)
	if !ok {
		return id
	}
	return v.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
