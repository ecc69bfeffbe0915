package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/stkpush/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/stkpush/internal/app"
	"github.com/MrJamesThe3rd/stkpush/internal/config"
)

type model struct {
	app *app.App

	currentView View

	payView     view.PayModel
	historyView view.HistoryModel
}

type View int

const (
	ViewMenu    View = 0
	ViewPay     View = 1
	ViewHistory View = 2
)

func initialModel(a *app.App) model {
	return model{
		app:         a,
		currentView: ViewMenu,
		payView:     view.NewPayModel(a.Initiator),
		historyView: view.NewHistoryModel(a.Transactions),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewPay
				m.payView = view.NewPayModel(m.app.Initiator)

				return m, m.payView.Init()
			case "2":
				m.currentView = ViewHistory
				m.historyView = view.NewHistoryModel(m.app.Transactions)

				return m, m.historyView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewPay:
		var newModel tea.Model
		newModel, cmd = m.payView.Update(msg)
		m.payView = newModel.(view.PayModel)
	case ViewHistory:
		var newModel tea.Model
		newModel, cmd = m.historyView.Update(msg)
		m.historyView = newModel.(view.HistoryModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"STK Push Console\n\n" +
				"1. Send Payment\n" +
				"2. Transaction History\n\n" +
				"q. Quit",
		)
	case ViewPay:
		return m.payView.View()
	case ViewHistory:
		return m.historyView.View()
	}

	return "Unknown View"
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI; only errors go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	ctx := context.Background()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise services", "error", err)
		os.Exit(1)
	}
	defer a.Close(ctx)

	p := tea.NewProgram(initialModel(a))
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
