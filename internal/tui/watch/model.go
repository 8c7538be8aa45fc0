package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/hooky/internal/store"
)

// headerHeight is the rendered height of the bordered header box.
const headerHeight = 6

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	client *Client

	width  int
	height int

	health   HealthState
	requests []store.CapturedRequest

	ticker  Ticker
	spinner Spinner

	theme       Theme
	table       table.Model
	detail      viewport.Model
	detailFocus bool

	captures chan store.CapturedRequest

	lastError string
}

// New creates a watch model following the webhook configured on client.
func New(client *Client) *Model {
	theme := NewDefaultTheme()
	t := table.New(
		table.WithColumns(requestColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(theme.Table)

	return &Model{
		client:   client,
		captures: make(chan store.CapturedRequest, 100),
		ticker:   NewTicker(),
		spinner:  NewSpinner(),
		theme:    theme,
		table:    t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.fetchHistory,
		m.client.subscribe(m.captures),
		receiveNextCapture(m.captures),
		m.client.fetchHealth,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.detailFocus = !m.detailFocus
			if m.detailFocus {
				m.table.Blur()
			} else {
				m.table.Focus()
			}
			return m, nil
		case "r":
			return m, m.client.fetchHistory
		}

		var cmd tea.Cmd
		if m.detailFocus {
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
		prev := m.table.Cursor()
		m.table, cmd = m.table.Update(msg)
		if m.table.Cursor() != prev {
			m.refreshDetail()
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(time.Time(msg))
		m.refreshRows()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case captureMsg:
		r := store.CapturedRequest(msg)
		m.requests = mergeRequests(m.requests, r)
		m.spinner.OnCapture(time.Now())
		m.health.Connected = true
		m.lastError = ""
		m.refreshRows()
		m.refreshDetail()
		return m, receiveNextCapture(m.captures)

	case historyMsg:
		m.requests = mergeRequests(m.requests, msg...)
		m.refreshRows()
		m.refreshDetail()

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.client.fetchHealth()
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		// The pending receiveNextCapture keeps draining the same channel.
		return m, tea.Batch(m.client.subscribe(m.captures), m.client.fetchHistory)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.client.fetchHealth()
		})
	}

	return m, nil
}

func (m *Model) resize() {
	inner := m.width - 6
	body := m.height - headerHeight - 6
	if body < 6 {
		body = 6
	}
	m.table.SetColumns(requestColumns(inner))
	m.table.SetWidth(inner)
	m.table.SetHeight(body / 2)
	m.detail.Width = inner
	m.detail.Height = body - body/2
}

func (m *Model) refreshRows() {
	m.table.SetRows(requestRows(m.requests, time.Now()))
}

func (m *Model) refreshDetail() {
	if len(m.requests) == 0 {
		m.detail.SetContent("")
		return
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.requests) {
		i = 0
	}
	m.detail.SetContent(renderDetail(m.requests[i], m.theme))
	m.detail.GotoTop()
}

// Selected returns the request under the cursor.
func (m Model) Selected() (store.CapturedRequest, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.requests) {
		return store.CapturedRequest{}, false
	}
	return m.requests[i], true
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	header := renderHeader(headerInfo{
		WebhookID: m.client.WebhookID,
		BaseURL:   m.client.BaseURL,
		Captured:  len(m.requests),
	}, m.health, m.ticker, m.spinner, m.theme, m.width)

	parts := []string{header}
	if len(m.requests) == 0 {
		parts = append(parts, renderEmpty(m.theme, m.width))
	} else {
		parts = append(parts,
			m.theme.Border.Width(m.width-4).Render(m.table.View()),
			m.theme.Border.Width(m.width-4).Render(m.detail.View()),
		)
	}

	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError)))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select • [tab] Scroll details • [r] Reload")
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
