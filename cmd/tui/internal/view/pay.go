package view

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/stkpush/internal/payment"
)

type payState int

const (
	payStateForm payState = iota
	payStateSending
	payStateResult
)

// payFields is shared with the form by pointer so bindings survive model copies.
type payFields struct {
	phone   string
	amount  string
	confirm bool
}

type PayModel struct {
	CommonModel
	initiator *payment.Initiator

	state   payState
	form    *huh.Form
	fields  *payFields
	spinner spinner.Model

	result *payment.Result
	err    error
}

func NewPayModel(initiator *payment.Initiator) PayModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := PayModel{
		initiator: initiator,
		state:     payStateForm,
		fields:    &payFields{},
		spinner:   s,
	}
	m.form = m.buildForm()

	return m
}

func (m PayModel) Title() string { return "Send Payment" }

func (m PayModel) ShortHelp() string {
	switch m.state {
	case payStateResult:
		return "Esc: back to menu | n: new payment"
	case payStateSending:
		return "Sending..."
	}

	return "Esc: back | Enter: confirm"
}

func (m PayModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m PayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.state {
	case payStateForm:
		return m.updateForm(msg)
	case payStateSending:
		return m.updateSending(msg)
	case payStateResult:
		return m.updateResult(msg)
	}

	return m, nil
}

func (m PayModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		return m, Back
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		if !m.fields.confirm {
			return m, Back
		}
	case huh.StateAborted:
		return m, Back
	default:
		return m, cmd
	}

	amount, err := parseAmount(m.fields.amount)
	if err != nil {
		m.state = payStateResult
		m.err = err

		return m, nil
	}

	m.state = payStateSending
	m.err = nil

	return m, tea.Batch(m.spinner.Tick, m.sendCmd(strings.TrimSpace(m.fields.phone), amount))
}

func (m PayModel) updateSending(msg tea.Msg) (tea.Model, tea.Cmd) {
	if result, ok := msg.(payResultMsg); ok {
		m.state = payStateResult
		m.result = result.result
		m.err = result.err

		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)

	return m, cmd
}

func (m PayModel) updateResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "n":
			next := NewPayModel(m.initiator)
			return next, next.Init()
		}
	}

	return m, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount must be a number")
	}

	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount must be greater than 0")
	}

	return d, nil
}

func (m PayModel) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("phone").
				Title("Phone Number").
				Description("Local (07...) or international (2547...) format").
				Placeholder("0712345678").
				Value(&m.fields.phone).
				Validate(func(s string) error {
					if !strings.ContainsAny(s, "0123456789") {
						return errors.New("phone number is required")
					}

					return nil
				}),

			huh.NewInput().
				Key("amount").
				Title("Amount").
				Placeholder("100").
				Value(&m.fields.amount).
				Validate(func(s string) error {
					_, err := parseAmount(s)
					return err
				}),

			huh.NewConfirm().
				Key("confirm").
				Title("Send payment prompt to the customer's phone?").
				Affirmative("Send").
				Negative("Cancel").
				Value(&m.fields.confirm),
		),
	).WithWidth(50).WithShowHelp(false)
}

func (m PayModel) View() string {
	switch m.state {
	case payStateForm:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())

	case payStateSending:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("%s Requesting payment from %s...", m.spinner.View(), m.fields.phone),
		)

	case payStateResult:
		return m.viewResult()
	}

	return ""
}

func (m PayModel) viewResult() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(1).Render(
			lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(fmt.Sprintf("Error: %s", errorText(m.err))),
		)
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("46")).
		Render("Payment Requested")

	return lipgloss.NewStyle().Padding(1).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			"",
			fmt.Sprintf("Transaction:    %s", m.result.TransactionID),
			fmt.Sprintf("Correlation ID: %s", m.result.CheckoutRequestID),
			"",
			m.result.CustomerMessage,
			"",
			lipgloss.NewStyle().Faint(true).Render("The status updates when the provider calls back."),
		),
	)
}

func errorText(err error) string {
	if msg, ok := payment.ProviderMessage(err); ok {
		return msg
	}

	return err.Error()
}

type payResultMsg struct {
	result *payment.Result
	err    error
}

func (m PayModel) sendCmd(phone string, amount decimal.Decimal) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), paymentTimeout)
		defer cancel()

		res, err := m.initiator.InitiatePayment(ctx, payment.Request{
			PhoneNumber: phone,
			Amount:      amount,
		})

		return payResultMsg{result: res, err: err}
	}
}
