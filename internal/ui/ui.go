package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackshift/internal/models"
	"github.com/desertthunder/trackshift/internal/session"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	OnboardingView
	HomeView
)

// InitialRoute maps a session state to the view shown for it.
func InitialRoute(state models.SessionState) ViewState {
	switch state {
	case models.SessionAuthenticated:
		return HomeView
	case models.SessionNotAuthenticated:
		return OnboardingView
	default:
		return LoadingView
	}
}

// GuestSignIn signs in without an account and reports success.
type GuestSignIn func(ctx context.Context) bool

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	holder    *session.Holder
	guest     GuestSignIn
	spinner   spinner.Model
	platforms list.Model
	selected  models.Platform
	width     int
	height    int
	status    string
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a TUI model routed by holder. guest may be nil when guest sign-in is unavailable.
func NewModel(ctx context.Context, holder *session.Holder, guest GuestSignIn) *Model {
	platforms := list.New(platformItems(), list.NewDefaultDelegate(), 0, 0)
	platforms.Title = "Convert to"
	platforms.SetShowHelp(false)

	return &Model{
		ctx:       ctx,
		view:      InitialRoute(holder.State()),
		holder:    holder,
		guest:     guest,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		platforms: platforms,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init starts the session check and the spinner.
func (m *Model) Init() tea.Cmd {
	m.holder.Start(m.ctx)
	return tea.Batch(m.spinner.Tick, m.waitForSession())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.platforms.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		if m.view != LoadingView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == HomeView {
		var cmd tea.Cmd
		m.platforms, cmd = m.platforms.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSessionResolved:
		result := msg.data.(sessionResult)
		m.err = result.err
		m.view = InitialRoute(result.state)
		if m.view == LoadingView {
			return m, m.spinner.Tick
		}
		return m, nil
	case MsgGuestSignIn:
		if ok := msg.data.(bool); !ok {
			m.status = "Guest sign-in failed. Check the logs and press r to retry."
			m.view = OnboardingView
			return m, nil
		}
		m.status = ""
		return m, m.recheck()
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.recheck):
		m.view = LoadingView
		return m, tea.Batch(m.spinner.Tick, m.recheck())
	}

	switch m.view {
	case OnboardingView:
		if key.Matches(msg, m.keys.guest) && m.guest != nil {
			m.view = LoadingView
			return m, tea.Batch(m.spinner.Tick, m.signInAsGuest())
		}
	case HomeView:
		if key.Matches(msg, m.keys.enter) {
			if item, ok := m.platforms.SelectedItem().(platformItem); ok {
				m.selected = item.platform
				m.status = fmt.Sprintf("trackshift convert --to %s --region FR <screenshots...>", item.platform.APIValue())
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.platforms, cmd = m.platforms.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Selected returns the platform picked on the home view, if any.
func (m *Model) Selected() models.Platform {
	return m.selected
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoadingView:
		return fmt.Sprintf("%s Loading session...\n\n%s", m.spinner.View(), m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	case OnboardingView:
		return m.renderOnboarding()
	case HomeView:
		return m.renderHome()
	default:
		return ""
	}
}

func (m *Model) renderOnboarding() string {
	title := styles.title.Render("Welcome to TrackShift")
	body := "Turn playlist screenshots into playlists on your music service.\n\n" +
		"Sign in with `trackshift auth email`, or continue as a guest."

	var status string
	if m.err != nil {
		status = "\n\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	} else if m.status != "" {
		status = "\n\n" + styles.warn.Render(m.status)
	}

	keys := []key.Binding{m.keys.recheck, m.keys.quit}
	if m.guest != nil {
		keys = append([]key.Binding{m.keys.guest}, keys...)
	}
	return fmt.Sprintf("%s\n%s%s\n\n%s", title, body, status, m.help.ShortHelpView(keys))
}

func (m *Model) renderHome() string {
	var status string
	if m.status != "" {
		status = "\n" + styles.ok.Render("Run: ") + styles.help.Render(m.status)
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.recheck, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", m.platforms.View(), status, helpView)
}

func (m *Model) waitForSession() tea.Cmd {
	return func() tea.Msg {
		state, err := m.holder.Wait(m.ctx)
		return sessionResolvedMsg(state, err)
	}
}

func (m *Model) recheck() tea.Cmd {
	return func() tea.Msg {
		return sessionResolvedMsg(m.holder.Recheck(m.ctx), nil)
	}
}

func (m *Model) signInAsGuest() tea.Cmd {
	return func() tea.Msg {
		return guestSignInMsg(m.guest(m.ctx))
	}
}
