package tui

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"ethfolio/pkg/config"
	"ethfolio/pkg/models"
	"ethfolio/pkg/portfolio"
	"ethfolio/pkg/wallet"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewed = "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"

type stubSource struct {
	tokens int
	nfts   []models.RawNFT
}

func (s stubSource) GetBalance(ctx context.Context, owner string) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (s stubSource) GetTokenBalances(ctx context.Context, owner string) ([]models.RawTokenBalance, error) {
	out := make([]models.RawTokenBalance, s.tokens)
	for i := range out {
		out[i] = models.RawTokenBalance{ContractAddress: "0xtoken", Balance: big.NewInt(1e18)}
	}
	return out, nil
}

func (s stubSource) GetTokenMetadata(ctx context.Context, contract string) (models.TokenMetadata, error) {
	return models.TokenMetadata{Name: "Dai Stablecoin", Symbol: "DAI", Decimals: 18}, nil
}

func (s stubSource) GetNFTsForOwner(ctx context.Context, owner string, q models.NFTQuery) ([]models.RawNFT, error) {
	return s.nfts, nil
}

func (s stubSource) Close() {}

func newTestModel(t *testing.T, ds portfolio.DataSource) model {
	t.Helper()
	dialer := portfolio.DialerFunc(func(ctx context.Context, network models.Network) (portfolio.DataSource, error) {
		return ds, nil
	})
	o := portfolio.New(dialer, portfolio.Options{}, nil)
	m := initialModel(Options{
		Orchestrator: o,
		Connector:    wallet.NewConnector(wallet.NewBridge(nil), nil),
		Config:       config.Default(),
		WalletURL:    "http://localhost:8080/wallet",
	})
	t.Cleanup(func() { o.Unsubscribe(m.sub) })
	return m
}

func press(m model, keys ...string) model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(model)
	}
	return m
}

// settle applies all events the orchestrator has published so far.
func settle(m model) model {
	m.orchestrator.Wait()
	for {
		select {
		case ev := <-m.sub:
			next, _ := m.Update(ev)
			m = next.(model)
		default:
			return m
		}
	}
}

func typeAddress(m model, addr string) model {
	m = press(m, "/")
	m.input.SetValue(addr)
	return press(m, "enter")
}

func TestCommitAddress(t *testing.T) {
	m := newTestModel(t, stubSource{tokens: 2})

	m = typeAddress(m, strings.ToLower(viewed))
	assert.False(t, m.editing)
	m = settle(m)

	assert.Equal(t, portfolio.StateLoaded, m.snapshot.State)
	assert.Equal(t, viewed, m.snapshot.Address)
	assert.Equal(t, "1.0000", m.snapshot.Balance)
	assert.Len(t, m.snapshot.Tokens, 2)
}

func TestCommitInvalidAddress(t *testing.T) {
	m := newTestModel(t, stubSource{})

	m = typeAddress(m, "0x276417be271dbeb696cb97cda7c6982fd89e6bd4aaa")
	m = settle(m)

	assert.Contains(t, m.statusMessage, "Invalid Address")
	assert.True(t, m.statusIsError)
	assert.Equal(t, portfolio.StateIdle, m.snapshot.State)
	_, _, ok := m.orchestrator.Current()
	assert.False(t, ok)
}

func TestCancelEditing(t *testing.T) {
	m := newTestModel(t, stubSource{})
	m = press(m, "/")
	require.True(t, m.editing)
	m.input.SetValue("0xabc")
	m = press(m, "esc")

	assert.False(t, m.editing)
	assert.Equal(t, "", m.input.Value())
	_, _, ok := m.orchestrator.Current()
	assert.False(t, ok)
}

func TestSwitchNetwork(t *testing.T) {
	m := newTestModel(t, stubSource{})

	// Without an address only the selection changes.
	m = press(m, "n")
	assert.Equal(t, models.EthGoerli, m.network())

	m = settle(typeAddress(m, viewed))
	assert.Equal(t, models.EthGoerli, m.snapshot.Network)

	m = settle(press(m, "n"))
	assert.Equal(t, models.EthSepolia, m.snapshot.Network)
	assert.Equal(t, viewed, m.snapshot.Address)
	assert.Equal(t, portfolio.StateLoaded, m.snapshot.State)
}

func TestTabsAndCursor(t *testing.T) {
	nfts := []models.RawNFT{
		{ContractAddress: "0xpunks", Title: "Cryptopunk #5", TokenID: "5"},
		{ContractAddress: "0xpunks", Title: "Cryptopunk #6", TokenID: "6"},
		{ContractAddress: "0xpunks", Title: "Cryptopunk #7", TokenID: "7"},
	}
	m := newTestModel(t, stubSource{tokens: 1, nfts: nfts})
	m = settle(typeAddress(m, viewed))

	assert.Equal(t, tabNFTs, m.activeTab)
	m = press(m, "right", "right", "right")
	assert.Equal(t, 2, m.cursor)

	var opened string
	origOpen := openURL
	openURL = func(url string) error { opened = url; return nil }
	defer func() { openURL = origOpen }()

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, "https://opensea.io/assets/0xpunks/7", opened)
	assert.Equal(t, statusMsg{text: "Opened in browser"}, msg)

	m = press(m, "tab")
	assert.Equal(t, tabTokens, m.activeTab)
	assert.Equal(t, 0, m.cursor)
	m = press(m, "down")
	assert.Equal(t, 0, m.cursor)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, "https://etherscan.io/address/0xtoken", opened)
}

func TestCopyAddress(t *testing.T) {
	var copied string
	origCopy := writeClipboard
	writeClipboard = func(s string) error { copied = s; return nil }
	defer func() { writeClipboard = origCopy }()

	m := newTestModel(t, stubSource{})
	m = settle(typeAddress(m, viewed))
	m = press(m, "c")

	assert.Equal(t, viewed, copied)
	assert.Contains(t, m.statusMessage, "copied")

	writeClipboard = func(string) error { return errors.New("no clipboard") }
	m = press(m, "c")
	assert.True(t, m.statusIsError)
}

func TestWalletWithoutExtension(t *testing.T) {
	m := newTestModel(t, stubSource{})
	m = press(m, "w")

	assert.True(t, m.statusIsError)
	assert.Contains(t, m.statusMessage, "No Wallet Detected")
	assert.Contains(t, m.statusMessage, "http://localhost:8080/wallet")
}

func TestWalletConnectedViewsWallet(t *testing.T) {
	m := newTestModel(t, stubSource{})

	next, _ := m.Update(walletMsg(viewed))
	m = next.(model)
	assert.Equal(t, viewed, m.wallet)
	assert.Contains(t, m.View(), "0xd8...6045")

	m = settle(press(m, "w"))
	assert.Equal(t, viewed, m.snapshot.Address)
}

func TestRetryWithoutRequest(t *testing.T) {
	m := newTestModel(t, stubSource{})
	m = press(m, "r")
	assert.True(t, m.statusIsError)
}

func TestStaleEventIgnored(t *testing.T) {
	m := newTestModel(t, stubSource{})
	m.snapshot = portfolio.Snapshot{Generation: 5, State: portfolio.StateLoaded}

	next, _ := m.Update(portfolio.Event{
		Type: portfolio.EventStateChanged,
		Data: portfolio.Snapshot{Generation: 4, State: portfolio.StateFailed},
	})
	m = next.(model)
	assert.Equal(t, uint64(5), m.snapshot.Generation)
}

func TestViewStates(t *testing.T) {
	m := newTestModel(t, stubSource{})
	m.width, m.height = 100, 40

	assert.Contains(t, m.View(), "Connect")

	m.snapshot = portfolio.Snapshot{Address: viewed, State: portfolio.StateLoading}
	assert.Contains(t, m.View(), "Loading...")

	m.snapshot = portfolio.Snapshot{Address: viewed, State: portfolio.StateLoaded, Balance: "0.0000"}
	out := m.View()
	assert.Contains(t, out, "Nothing Found")
	assert.Contains(t, out, "ETH Balance: 0.0000")

	m.snapshot = portfolio.Snapshot{
		Address: viewed,
		State:   portfolio.StateFailed,
		Failure: &portfolio.Failure{Kind: models.FailureUpstream, Message: "load balance: 503"},
	}
	out = m.View()
	assert.Contains(t, out, "load balance: 503")
	assert.Contains(t, out, "press r to retry")
}

func TestGridScrollsToCursor(t *testing.T) {
	nfts := make([]models.RawNFT, 40)
	for i := range nfts {
		nfts[i] = models.RawNFT{ContractAddress: "0xpunks", Title: fmt.Sprintf("Punk-%d", i), TokenID: fmt.Sprint(i)}
	}
	m := newTestModel(t, stubSource{nfts: nfts})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 84, Height: 24})
	m = next.(model)
	m = settle(typeAddress(m, viewed))
	require.Len(t, m.snapshot.NFTs, 40)

	for i := 0; i < 20; i++ {
		m = press(m, "down")
	}
	require.Equal(t, 39, m.cursor)

	out := m.View()
	assert.LessOrEqual(t, lipgloss.Height(out), 24)
	assert.Contains(t, out, "Punk-39")
	assert.NotContains(t, out, "Punk-0")
	assert.Greater(t, m.viewport.YOffset, 0)

	// Going back up brings the first row into view again.
	for i := 0; i < 20; i++ {
		m = press(m, "up")
	}
	require.Equal(t, 0, m.cursor)
	assert.Equal(t, 0, m.viewport.YOffset)
	assert.Contains(t, m.View(), "Punk-0")
}

func TestRenderCards(t *testing.T) {
	token := renderTokenCard(models.TokenHolding{
		ContractAddress: "0x6b175474e89094c44da98b954eedeac495271d0f",
		RawBalance:      new(big.Int).Mul(big.NewInt(1234), big.NewInt(1e18)),
		Decimals:        18,
		Symbol:          "DAI",
		Name:            "Dai Stablecoin",
	}, 2, false)
	assert.Contains(t, token, "Dai Stablecoin")
	assert.Contains(t, token, "$DAI")
	assert.Contains(t, token, "Balance: 1,234.00")

	nft := renderNFTCard(models.NFTItem{
		Title:   "CryptoPunks",
		Symbol:  "PUNK",
		TokenID: "5",
		Media:   &models.NFTMedia{Gateway: "https://x/5.png", Format: "png"},
	}, true)
	assert.Contains(t, nft, "CryptoPunks")
	assert.Contains(t, nft, "#5")
	assert.Contains(t, nft, "$PUNK")
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "https://etherscan.io/address/0xabc", tokenURL("https://etherscan.io/", "0xabc"))
	assert.Equal(t, "https://etherscan.io/address/0xabc", addressURL("https://etherscan.io", "0xabc"))
	assert.Equal(t, "https://opensea.io/assets/0xabc/42", nftURL("https://opensea.io", "0xabc", "42"))
}

func TestMediaLabel(t *testing.T) {
	assert.Equal(t, "", mediaLabel(nil))
	assert.Equal(t, "▶ video ipfs://clip", mediaLabel(&models.NFTMedia{Raw: "ipfs://clip", Format: "mp4"}))
	assert.Equal(t, "▣ png https://x/5.png", mediaLabel(&models.NFTMedia{Gateway: "https://x/5.png", Format: "png"}))
	assert.Equal(t, "▣ ipfs://raw", mediaLabel(&models.NFTMedia{Raw: "ipfs://raw"}))
}

func TestMoveCursor(t *testing.T) {
	m := model{width: cardWidth * 3}
	m.snapshot.NFTs = make([]models.NFTItem, 7)

	assert.Equal(t, 3, m.columns())
	m.moveCursor(m.columns())
	assert.Equal(t, 3, m.cursor)
	m.moveCursor(m.columns())
	assert.Equal(t, 6, m.cursor)
	m.moveCursor(m.columns())
	assert.Equal(t, 6, m.cursor)
	m.moveCursor(-1)
	assert.Equal(t, 5, m.cursor)
	m.moveCursor(-10)
	assert.Equal(t, 0, m.cursor)

	m.snapshot.NFTs = m.snapshot.NFTs[:2]
	m.cursor = 5
	m.clampCursor()
	assert.Equal(t, 1, m.cursor)
}
