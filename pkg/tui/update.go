package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ethfolio/pkg/address"
	"ethfolio/pkg/models"
	"ethfolio/pkg/portfolio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const statusTimeout = 3 * time.Second

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	if nm, ok := next.(model); ok {
		nm.scrollToCursor()
		next = nm
	}
	return next, cmd
}

func (m model) update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case portfolio.Event:
		cmds = append(cmds, listenForEvents(m.sub))
		if msg.Type != portfolio.EventStateChanged || msg.Data.Generation < m.snapshot.Generation {
			break
		}
		wasLoading := m.snapshot.Loading()
		m.snapshot = msg.Data
		m.clampCursor()
		if m.snapshot.Loading() && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}

	case walletMsg:
		if m.connector != nil {
			cmds = append(cmds, listenForWallet(m.connector.Updates()))
		}
		m.wallet = string(msg)
		if m.wallet == "" {
			cmds = append(cmds, m.setStatus("Wallet disconnected", false))
		} else {
			cmds = append(cmds, m.setStatus("Wallet connected: "+address.Shorten(m.wallet), false))
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.snapshot.Loading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case statusMsg:
		cmds = append(cmds, m.setStatus(msg.text, msg.isError))

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsError = false
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		switch {
		case key.Matches(msg, m.keys.Commit):
			value := strings.TrimSpace(m.input.Value())
			m.editing = false
			m.input.Blur()
			return m.viewAddress(value)
		case key.Matches(msg, m.keys.Cancel):
			m.editing = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Cancel, m.keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true

	case key.Matches(msg, m.keys.Search):
		m.editing = true
		m.input.Reset()
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Network):
		return m.switchNetwork()

	case key.Matches(msg, m.keys.Wallet):
		return m.walletAction()

	case key.Matches(msg, m.keys.NextTab, m.keys.PrevTab):
		if m.activeTab == tabNFTs {
			m.activeTab = tabTokens
		} else {
			m.activeTab = tabNFTs
		}
		m.cursor = 0

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-m.columns())
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(m.columns())
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.Open):
		if url := m.selectedURL(); url != "" {
			return m, m.open(url)
		}

	case key.Matches(msg, m.keys.Address):
		if m.snapshot.Address != "" {
			return m, m.open(addressURL(m.config.ExplorerURL, m.snapshot.Address))
		}

	case key.Matches(msg, m.keys.Copy):
		if m.snapshot.Address == "" {
			return m, nil
		}
		if err := writeClipboard(m.snapshot.Address); err != nil {
			return m, m.setStatus("Failed to copy to clipboard", true)
		}
		return m, m.setStatus("Full address copied to clipboard!", false)

	case key.Matches(msg, m.keys.Retry):
		if err := m.orchestrator.Retry(); err != nil {
			return m, m.setStatus("Nothing to retry yet", true)
		}
		return m, m.setStatus("Retrying...", false)
	}

	return m, nil
}

func (m model) viewAddress(value string) (tea.Model, tea.Cmd) {
	var err error
	if _, _, ok := m.orchestrator.Current(); ok {
		err = m.orchestrator.SetAddress(value)
	} else {
		err = m.orchestrator.View(value, m.network())
	}
	if err != nil {
		if models.IsKind(err, models.FailureInput) {
			return m, m.setStatus("Invalid Address: make sure you enter a valid Ethereum address", true)
		}
		return m, m.setStatus(err.Error(), true)
	}
	m.input.Reset()
	m.cursor = 0
	return m, nil
}

func (m model) switchNetwork() (tea.Model, tea.Cmd) {
	next := m.network().Next()
	if _, _, ok := m.orchestrator.Current(); !ok {
		m.config.Network = next
		return m, m.setStatus("Network: "+next.Label(), false)
	}
	if err := m.orchestrator.SetNetwork(next); err != nil {
		return m, m.setStatus(err.Error(), true)
	}
	m.cursor = 0
	return m, m.setStatus("Network: "+next.Label(), false)
}

// walletAction views the connected wallet, or asks the wallet to connect when there is none.
func (m model) walletAction() (tea.Model, tea.Cmd) {
	if m.wallet != "" {
		return m.viewAddress(m.wallet)
	}

	var err error
	if m.connector == nil {
		err = models.NewLoadError(models.FailureCapability, "connect wallet", nil)
	} else {
		err = m.connector.Connect(context.Background())
	}
	if err != nil {
		if models.IsKind(err, models.FailureCapability) {
			msg := "No Wallet Detected! Please install MetaMask"
			if m.walletURL != "" {
				msg = fmt.Sprintf("%s and open %s", msg, m.walletURL)
			}
			return m, m.setStatus(msg, true)
		}
		return m, m.setStatus(err.Error(), true)
	}
	return m, m.setStatus("Waiting for wallet approval...", false)
}

func (m model) open(url string) tea.Cmd {
	return func() tea.Msg {
		if err := openURL(url); err != nil {
			return statusMsg{text: fmt.Sprintf("Failed to open browser: %v", err), isError: true}
		}
		return statusMsg{text: "Opened in browser"}
	}
}

type statusMsg struct {
	text    string
	isError bool
}

func (m *model) setStatus(text string, isError bool) tea.Cmd {
	m.statusMessage = text
	m.statusIsError = isError
	return clearStatusAfter(statusTimeout)
}
