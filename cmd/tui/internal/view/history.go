package view

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

var statusFilters = []struct {
	label  string
	status *transaction.Status
}{
	{label: "All"},
	{label: "Pending", status: new(transaction.StatusPending)},
	{label: "Completed", status: new(transaction.StatusCompleted)},
	{label: "Failed", status: new(transaction.StatusFailed)},
}

type HistoryModel struct {
	CommonModel
	txService *transaction.Service

	table table.Model
	txs   []*transaction.Transaction

	statusFilterIdx int
	showDetail      bool

	filter  transaction.ListFilter
	loading bool
	err     error
}

func NewHistoryModel(txSvc *transaction.Service) HistoryModel {
	columns := []table.Column{
		{Title: "Created", Width: 17},
		{Title: "Status", Width: 10},
		{Title: "Amount", Width: 10},
		{Title: "Phone", Width: 13},
		{Title: "Correlation ID", Width: 30},
		{Title: "Receipt", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return HistoryModel{
		txService: txSvc,
		table:     t,
		filter:    transaction.ListFilter{Limit: transaction.DefaultListLimit},
		loading:   true,
	}
}

func (m HistoryModel) Title() string { return "Transaction History" }
func (m HistoryModel) ShortHelp() string {
	return "Esc: back | Enter: details | s: status filter | r: refresh"
}

func (m HistoryModel) Init() tea.Cmd {
	return m.loadTxsCmd()
}

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadHistoryMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.txs = msg.txs
		m.refreshTable()
		return m, nil

	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.table.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.showDetail {
				m.showDetail = false
				return m, nil
			}
			return m, Back
		case "enter":
			m.showDetail = !m.showDetail
			return m, nil
		case "r":
			m.loading = true
			return m, m.loadTxsCmd()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % len(statusFilters)
			m.filter.Status = statusFilters[m.statusFilterIdx].status
			m.loading = true
			return m, m.loadTxsCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m HistoryModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading transactions...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	header := fmt.Sprintf(
		"Filter: [s] Status: %s | %d shown",
		activeStyle(statusFilters[m.statusFilterIdx].label),
		len(m.txs),
	)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.showDetail {
		if tx := m.selected(); tx != nil {
			panel := lipgloss.NewStyle().
				Padding(1, 2).
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63")).
				Width(48).
				Render(detail(tx))

			content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
		}
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m HistoryModel) selected() *transaction.Transaction {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.txs) {
		return nil
	}

	return m.txs[idx]
}

func detail(tx *transaction.Transaction) string {
	resultCode := ""
	if tx.ResultCode != nil {
		resultCode = strconv.Itoa(*tx.ResultCode)
	}

	confirmed := ""
	if tx.ConfirmedAmount != nil {
		confirmed = FormatAmount(*tx.ConfirmedAmount)
	}

	return fmt.Sprintf(
		"Transaction %s\n\nStatus:      %s\nAmount:      %s\nConfirmed:   %s\nPhone:       %s\nUser:        %s\nMerchant ID: %s\nReceipt:     %s\nResult:      %s %s\nUpdated:     %s",
		tx.ID,
		tx.Status,
		FormatAmount(tx.Amount),
		confirmed,
		tx.PhoneNumber,
		deref(tx.UserID),
		tx.MerchantRequestID,
		deref(tx.Receipt),
		resultCode,
		tx.ResultDesc,
		FormatTime(tx.UpdatedAt),
	)
}

func activeStyle(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render(s)
}

func (m *HistoryModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.txs))
	for _, tx := range m.txs {
		rows = append(rows, table.Row{
			FormatTime(tx.CreatedAt),
			string(tx.Status),
			FormatAmount(tx.Amount),
			tx.PhoneNumber,
			tx.CheckoutRequestID,
			deref(tx.Receipt),
		})
	}
	m.table.SetRows(rows)
}

// Messages

type loadHistoryMsg struct {
	txs []*transaction.Transaction
	err error
}

func (m HistoryModel) loadTxsCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.txService.List(ctx, filter)
		return loadHistoryMsg{txs: txs, err: err}
	}
}
