package tui

import (
	"time"

	"ethfolio/pkg/config"
	"ethfolio/pkg/portfolio"
	"ethfolio/pkg/wallet"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}
type walletMsg string

type tab int

const (
	tabNFTs tab = iota
	tabTokens
)

func (t tab) String() string {
	if t == tabTokens {
		return "Tokens"
	}
	return "NFTs"
}

// Options wires the dashboard to its collaborators.
type Options struct {
	Orchestrator *portfolio.Orchestrator
	Connector    *wallet.Connector
	Config       config.Config
	// WalletURL is the local bridge page shown when no wallet is attached.
	WalletURL string
}

// --- Model ---

type model struct {
	orchestrator *portfolio.Orchestrator
	connector    *wallet.Connector
	sub          portfolio.Subscriber
	config       config.Config
	walletURL    string

	snapshot portfolio.Snapshot
	wallet   string

	input   textinput.Model
	editing bool

	activeTab tab
	cursor    int
	viewport  viewport.Model

	width         int
	height        int
	spinner       spinner.Model
	statusMessage string
	statusIsError bool
	help          help.Model
	keys          keyMap
	showHelp      bool
}

func initialModel(opts Options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "0x00...0000"
	ti.CharLimit = 64
	ti.Width = 44

	m := model{
		orchestrator: opts.Orchestrator,
		connector:    opts.Connector,
		sub:          opts.Orchestrator.Subscribe(),
		config:       opts.Config,
		walletURL:    opts.WalletURL,
		snapshot:     opts.Orchestrator.Snapshot(),
		input:        ti,
		viewport:     viewport.New(0, 0),
		spinner:      s,
		help:         help.New(),
		keys:         keys,
	}
	if opts.Connector != nil {
		m.wallet, _ = opts.Connector.Current()
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		listenForEvents(m.sub),
		m.spinner.Tick,
	}
	if m.connector != nil {
		cmds = append(cmds, listenForWallet(m.connector.Updates()))
	}
	return tea.Batch(cmds...)
}

func listenForEvents(sub portfolio.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func listenForWallet(updates <-chan string) tea.Cmd {
	return func() tea.Msg {
		addr, ok := <-updates
		if !ok {
			return nil
		}
		return walletMsg(addr)
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}
