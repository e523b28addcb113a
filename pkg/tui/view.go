package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"ethfolio/pkg/address"
	"ethfolio/pkg/models"
	"ethfolio/pkg/portfolio"
	"ethfolio/pkg/utils"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}

	sections := []string{
		m.viewTopBar(),
		m.viewUserInfo(),
		m.viewTabs(),
		m.viewGrid(),
	}

	footer := m.viewFooter()
	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.height <= 0 {
		return lipgloss.JoinVertical(lipgloss.Left, body, footer)
	}

	parts := []string{body}
	if gap := m.height - lipgloss.Height(body) - lipgloss.Height(footer); gap > 0 {
		parts = append(parts, strings.Repeat("\n", gap-1))
	}
	return lipgloss.JoinVertical(lipgloss.Left, append(parts, footer)...)
}

func (m model) viewFooter() string {
	footer := m.help.View(m.keys)
	if m.statusMessage == "" {
		return footer
	}
	style := infoStyle
	if m.statusIsError {
		style = errStyle
	}
	return lipgloss.JoinVertical(lipgloss.Left, style.Render(m.statusMessage), footer)
}

func (m model) viewTopBar() string {
	title := titleStyle.Render("Ethereum Portfolio")

	search := subtleStyle.Render("/ search")
	if m.editing {
		search = m.input.View()
	}

	networkLabel := subtleStyle.Render(fmt.Sprintf("[%s]", m.network().Label()))

	walletButton := fmt.Sprintf("%s Connect", disconnectedDot)
	if m.wallet != "" {
		walletButton = fmt.Sprintf("%s %s", connectedDot, address.Shorten(m.wallet))
	}

	left := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", search)
	right := lipgloss.JoinHorizontal(lipgloss.Center, networkLabel, "  ", walletButton, " ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, left, strings.Repeat(" ", gap), right)
}

func (m model) viewUserInfo() string {
	snap := m.snapshot
	if snap.Address == "" {
		return boxStyle.Render(subtleStyle.Render("Press / and enter an address to view its portfolio"))
	}

	balance := snap.Balance
	switch {
	case snap.Loading():
		balance = m.spinner.View()
	case balance == "":
		balance = "-"
	default:
		balance = utils.AddCommas(balance)
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		cardTitleStyle.Render(snap.Address),
		fmt.Sprintf("ETH Balance: %s", balance),
	))
}

func (m model) viewTabs() string {
	var tabs []string
	for _, t := range []tab{tabNFTs, tabTokens} {
		label := t.String()
		if !m.snapshot.Loading() && m.snapshot.State == portfolio.StateLoaded {
			if t == tabTokens {
				label = fmt.Sprintf("%s (%d)", label, len(m.snapshot.Tokens))
			} else {
				label = fmt.Sprintf("%s (%d)", label, len(m.snapshot.NFTs))
			}
		}
		if t == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m model) viewGrid() string {
	snap := m.snapshot
	width := m.width
	if width <= 0 {
		width = 80
	}
	center := func(s string) string {
		return lipgloss.Place(width, 8, lipgloss.Center, lipgloss.Center, s)
	}

	switch snap.State {
	case portfolio.StateIdle:
		return center(subtleStyle.Render("No address selected"))
	case portfolio.StateLoading:
		return center(m.spinner.View() + " Loading...")
	case portfolio.StateFailed:
		return center(m.viewFailure())
	}

	rows := m.cardRows()
	if len(rows) == 0 {
		return center("Nothing Found 😢")
	}
	if m.height <= 0 {
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}
	vp := m.gridViewport(rows)
	return vp.View()
}

// cardRows renders the active tab's cards, columns() per row.
func (m model) cardRows() []string {
	var cards []string
	if m.activeTab == tabTokens {
		places := int32(m.config.TokenDecimals)
		for i, token := range m.snapshot.Tokens {
			cards = append(cards, renderTokenCard(token, places, i == m.cursor))
		}
	} else {
		for i, nft := range m.snapshot.NFTs {
			cards = append(cards, renderNFTCard(nft, i == m.cursor))
		}
	}

	cols := m.columns()
	var rows []string
	for start := 0; start < len(cards); start += cols {
		end := start + cols
		if end > len(cards) {
			end = len(cards)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[start:end]...))
	}
	return rows
}

// gridViewport fits rows into the space left below the tabs, at the current scroll offset.
func (m model) gridViewport(rows []string) viewport.Model {
	width := m.width
	if width <= 0 {
		width = 80
	}
	chrome := lipgloss.Height(m.viewTopBar()) + lipgloss.Height(m.viewUserInfo()) +
		lipgloss.Height(m.viewTabs()) + lipgloss.Height(m.viewFooter())
	height := m.height - chrome
	if height < 1 {
		height = 1
	}

	vp := m.viewport
	vp.Width = width
	vp.Height = height
	vp.SetContent(lipgloss.JoinVertical(lipgloss.Left, rows...))
	vp.SetYOffset(m.viewport.YOffset)
	return vp
}

func (m model) viewFailure() string {
	msg := "Failed to load portfolio"
	if f := m.snapshot.Failure; f != nil {
		msg = f.Message
	}
	return boxStyle.BorderForeground(lipgloss.Color("#FF0000")).Render(lipgloss.JoinVertical(lipgloss.Center,
		errStyle.Render("Something went wrong"),
		utils.TruncateString(msg, 120),
		"",
		subtleStyle.Render("press r to retry"),
	))
}

func renderTokenCard(t models.TokenHolding, places int32, selected bool) string {
	name := t.Name
	if name == "" {
		name = address.Shorten(t.ContractAddress)
	}
	lines := []string{
		cardTitleStyle.Render(utils.TruncateString(name, cardWidth-4)),
		subtleStyle.Render("$" + utils.TruncateString(t.Symbol, cardWidth-5)),
		"",
		fmt.Sprintf("Balance: %s", utils.AddCommas(t.DisplayBalance(places))),
	}
	if t.Logo != "" {
		lines = append(lines, subtleStyle.Render("◉ logo"))
	}

	style := cardStyle
	if selected {
		style = selectedCardStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

func renderNFTCard(n models.NFTItem, selected bool) string {
	lines := []string{
		cardTitleStyle.Render(utils.TruncateString(n.Title, cardWidth-4)),
		utils.TruncateString(" #"+n.TokenID, cardWidth-4),
		subtleStyle.Render(" $" + utils.TruncateString(n.Symbol, cardWidth-6)),
	}
	if label := mediaLabel(n.Media); label != "" {
		lines = append(lines, subtleStyle.Render(utils.TruncateString(label, cardWidth-4)))
	}

	style := cardStyle
	if selected {
		style = selectedCardStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m model) viewHelp() string {
	h := m.help
	h.ShowAll = true

	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", h.View(m.keys)))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
