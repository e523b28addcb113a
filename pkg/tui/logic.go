package tui

import (
	"fmt"
	"strings"

	"ethfolio/pkg/models"
	"ethfolio/pkg/portfolio"

	"github.com/charmbracelet/lipgloss"
)

func (m model) itemCount() int {
	if m.activeTab == tabTokens {
		return len(m.snapshot.Tokens)
	}
	return len(m.snapshot.NFTs)
}

// columns is the number of cards per grid row at the current width.
func (m model) columns() int {
	width := m.width
	if width <= 0 {
		width = 80
	}
	if c := width / cardWidth; c > 1 {
		return c
	}
	return 1
}

func (m *model) moveCursor(delta int) {
	n := m.itemCount()
	if n == 0 {
		m.cursor = 0
		return
	}
	next := m.cursor + delta
	if next < 0 || next >= n {
		// Vertical moves off the grid land on the first or last card.
		if delta > 0 {
			next = n - 1
		} else {
			next = 0
		}
	}
	m.cursor = next
}

// scrollToCursor moves the grid viewport so the selected card's row is fully visible.
func (m *model) scrollToCursor() {
	if m.snapshot.State != portfolio.StateLoaded || m.height <= 0 {
		m.viewport.SetYOffset(0)
		return
	}
	rows := m.cardRows()
	row := m.cursor / m.columns()
	if row >= len(rows) {
		m.viewport.SetYOffset(0)
		return
	}

	vp := m.gridViewport(rows)
	top := 0
	for _, r := range rows[:row] {
		top += lipgloss.Height(r)
	}
	bottom := top + lipgloss.Height(rows[row])
	switch {
	case top < vp.YOffset:
		vp.SetYOffset(top)
	case bottom > vp.YOffset+vp.Height:
		vp.SetYOffset(bottom - vp.Height)
	}
	m.viewport = vp
}

func (m *model) clampCursor() {
	if n := m.itemCount(); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selectedURL is where the highlighted card links to, or "" with no card.
func (m model) selectedURL() string {
	if m.snapshot.Loading() || m.cursor >= m.itemCount() {
		return ""
	}
	if m.activeTab == tabTokens {
		return tokenURL(m.config.ExplorerURL, m.snapshot.Tokens[m.cursor].ContractAddress)
	}
	nft := m.snapshot.NFTs[m.cursor]
	return nftURL(m.config.MarketplaceURL, nft.ContractAddress, nft.TokenID)
}

// network is the network shown in the top bar.
func (m model) network() models.Network {
	if m.snapshot.Network != "" {
		return m.snapshot.Network
	}
	return m.config.Network
}

func tokenURL(explorer, contract string) string {
	return fmt.Sprintf("%s/address/%s", strings.TrimRight(explorer, "/"), contract)
}

func addressURL(explorer, addr string) string {
	return fmt.Sprintf("%s/address/%s", strings.TrimRight(explorer, "/"), addr)
}

func nftURL(market, contract, tokenID string) string {
	return fmt.Sprintf("%s/assets/%s/%s", strings.TrimRight(market, "/"), contract, tokenID)
}

// mediaLabel describes an NFT media entry in one line; video entries link the raw source.
func mediaLabel(media *models.NFTMedia) string {
	if media == nil {
		return ""
	}
	if media.Format == "mp4" {
		return "▶ video " + media.Raw
	}
	src := media.Gateway
	if src == "" {
		src = media.Raw
	}
	if media.Format != "" {
		return fmt.Sprintf("▣ %s %s", media.Format, src)
	}
	return "▣ " + src
}
