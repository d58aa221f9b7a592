package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/desertthunder/seedmix/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RecentView ViewState = iota
	NameView
	MixView
	ConfirmView
	ResultView
)

// Mixer is the part of [tasks.Mixer] the terminal flow drives.
type Mixer interface {
	Recent(ctx context.Context, session *models.Session, limit int) ([]models.Track, error)
	Mix(ctx context.Context, session *models.Session, req tasks.MixRequest, progress chan<- tasks.ProgressUpdate) (*tasks.MixResult, error)
	Confirm(ctx context.Context, session *models.Session, playlistID, action string) (*tasks.ConfirmResult, error)
}

var _ Mixer = (*tasks.Mixer)(nil)

// Options are the limits and defaults used by the terminal flow. Zero values use the [tasks.Mixer] defaults.
type Options struct {
	RecentLimit int
	Limit       int
	Name        string // initial playlist name
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	mixer        Mixer
	session      *models.Session
	opts         Options
	width        int
	height       int
	recentList   list.Model
	recent       []models.Track
	picked       []int // list indexes in pick order
	nameInput    textinput.Model
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	doneChan     chan Msg
	progress     tasks.ProgressUpdate
	result       *tasks.MixResult
	confirmed    *tasks.ConfirmResult
	notice       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model for a signed-in session.
func NewModel(ctx context.Context, mixer Mixer, session *models.Session, opts Options) *Model {
	input := textinput.New()
	input.Placeholder = "My Mix"
	input.CharLimit = 100
	input.SetValue(opts.Name)

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.ok

	return &Model{
		ctx:        ctx,
		view:       RecentView,
		mixer:      mixer,
		session:    session,
		opts:       opts,
		recentList: newRecentList(nil, 0, 0),
		nameInput:  input,
		spinner:    spin,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

func newRecentList(tracks []models.Track, width, height int) list.Model {
	l := list.New(trackItems(tracks), list.NewDefaultDelegate(), width, height)
	l.Title = "Recently Played"
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	return l
}

// Init initializes the TUI by fetching recently played tracks.
func (m *Model) Init() tea.Cmd {
	return m.fetchRecent()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recentList.SetSize(msg.Width-4, msg.Height-8)
		m.nameInput.Width = max(msg.Width-8, 20)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case RecentView:
			return m.handleRecentKeys(msg)
		case NameView:
			return m.handleNameKeys(msg)
		case MixView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != MixView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateComponents(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgRecentFetched:
		data := msg.data.(recentFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.recent = data.tracks
		m.picked = nil
		m.recentList = newRecentList(data.tracks, m.width-4, m.height-8)
		if len(data.tracks) == 0 {
			m.notice = "No recently played tracks. Play something on Spotify and press r."
		}
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, waitForMix(m.progressChan, m.doneChan)

	case MsgMixComplete:
		data := msg.data.(mixComplete)
		m.progressChan, m.doneChan = nil, nil
		if data.err != nil {
			m.err = data.err
			m.view = ResultView
			return m, nil
		}
		m.result = data.result
		m.view = ConfirmView
		return m, nil

	case MsgConfirmed:
		data := msg.data.(confirmed)
		m.confirmed = data.result
		m.err = data.err
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case RecentView:
		return m.renderRecent()
	case NameView:
		return m.renderName()
	case MixView:
		return m.renderMix()
	case ConfirmView:
		return m.renderConfirm()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleRecentKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.notice = ""
		return m, m.fetchRecent()
	case key.Matches(msg, m.keys.toggle):
		return m, m.toggle(m.recentList.Index())
	case key.Matches(msg, m.keys.enter):
		if len(m.picked) < services.MinSeeds {
			m.notice = "Pick at least one seed track."
			return m, nil
		}
		m.notice = ""
		m.view = NameView
		return m, m.nameInput.Focus()
	}

	var cmd tea.Cmd
	m.recentList, cmd = m.recentList.Update(msg)
	return m, cmd
}

// toggle picks or unpicks the track at list index i.
func (m *Model) toggle(i int) tea.Cmd {
	if i < 0 || i >= len(m.recent) {
		return nil
	}

	m.notice = ""
	if pos := slices.Index(m.picked, i); pos >= 0 {
		m.picked = slices.Delete(m.picked, pos, pos+1)
	} else if len(m.picked) >= services.MaxSeeds {
		m.notice = fmt.Sprintf("At most %d seed tracks.", services.MaxSeeds)
		return nil
	} else {
		m.picked = append(m.picked, i)
	}

	item := trackItem{index: i + 1, track: m.recent[i], selected: slices.Contains(m.picked, i)}
	return m.recentList.SetItem(i, item)
}

func (m *Model) seeds() []models.Track {
	seeds := make([]models.Track, len(m.picked))
	for i, idx := range m.picked {
		seeds[i] = m.recent[idx]
	}
	return seeds
}

func (m *Model) handleNameKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.nameInput.Blur()
		m.notice = ""
		m.view = RecentView
		return m, nil
	case "enter":
		if strings.TrimSpace(m.nameInput.Value()) == "" {
			m.notice = "The playlist needs a name."
			return m, nil
		}
		m.nameInput.Blur()
		m.notice = ""
		m.view = MixView
		return m, m.startMix()
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.keep):
		return m, m.confirm(tasks.ActionKeep)
	case key.Matches(msg, m.keys.remove):
		return m, m.confirm(tasks.ActionDelete)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		if services.IsAuthError(m.err) {
			return m, nil
		}
		m.view = RecentView
		m.result = nil
		m.confirmed = nil
		m.progress = tasks.ProgressUpdate{}
		m.err = nil
		return m, m.fetchRecent()
	}
	return m, nil
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case RecentView:
		m.recentList, cmd = m.recentList.Update(msg)
	case NameView:
		m.nameInput, cmd = m.nameInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchRecent() tea.Cmd {
	ctx, session, limit := m.ctx, m.session, m.opts.RecentLimit
	return func() tea.Msg {
		tracks, err := m.mixer.Recent(ctx, session, limit)
		return recentFetchedMsg(tracks, err)
	}
}

func (m *Model) startMix() tea.Cmd {
	req := tasks.MixRequest{
		Seeds: m.seeds(),
		Name:  m.nameInput.Value(),
		Limit: m.opts.Limit,
	}

	m.progressChan = make(chan tasks.ProgressUpdate, 8)
	m.doneChan = make(chan Msg, 1)

	ctx, session, progress, done := m.ctx, m.session, m.progressChan, m.doneChan
	go func() {
		result, err := m.mixer.Mix(ctx, session, req, progress)
		done <- mixCompleteMsg(result, err)
	}()

	return tea.Batch(m.spinner.Tick, waitForMix(progress, done))
}

// waitForMix returns the next progress update, or the final result once the mix returns.
func waitForMix(progress <-chan tasks.ProgressUpdate, done <-chan Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(update)
		case msg := <-done:
			return msg
		}
	}
}

func (m *Model) confirm(action tasks.Action) tea.Cmd {
	ctx, session, id := m.ctx, m.session, m.result.Playlist.ID
	return func() tea.Msg {
		result, err := m.mixer.Confirm(ctx, session, id, string(action))
		return confirmedMsg(result, err)
	}
}

func (m *Model) renderRecent() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Could not load recent tracks: %v", m.err)) + "\n\n" +
			m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	}

	status := fmt.Sprintf("%d/%d seeds picked", len(m.picked), services.MaxSeeds)
	if len(m.picked) > 0 {
		status = styles.selected.Render(status)
	}
	if m.notice != "" {
		status += "  " + styles.warn.Render(m.notice)
	}

	helpKeys := []key.Binding{m.keys.toggle, m.keys.enter, m.keys.restart, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", m.recentList.View(), status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderName() string {
	title := styles.title.Render("Name your playlist")

	var seeds strings.Builder
	for _, t := range m.seeds() {
		fmt.Fprintf(&seeds, "  • %s\n", t)
	}

	notice := ""
	if m.notice != "" {
		notice = "\n" + styles.warn.Render(m.notice)
	}

	helpKeys := []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "create")),
		m.keys.back,
	}
	return fmt.Sprintf("%s\nSeeds:\n%s\n%s%s\n\n%s", title, seeds.String(), m.nameInput.View(), notice, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderMix() string {
	title := styles.title.Render("Building your mix")

	msg := m.progress.Message
	if msg == "" {
		msg = "Starting..."
	}
	step := ""
	if m.progress.Total > 0 {
		step = styles.help.Render(fmt.Sprintf(" (%d/%d)", m.progress.Step, m.progress.Total))
	}
	return fmt.Sprintf("%s\n%s %s%s", title, m.spinner.View(), msg, step)
}

func (m *Model) renderConfirm() string {
	pl := m.result.Playlist
	title := styles.ok.Render(fmt.Sprintf("✓ Created '%s' with %d tracks", pl.Name, len(m.result.Tracks)))
	info := fmt.Sprintf("\n%s\n\nKeep this playlist?", pl.URL)

	helpKeys := []key.Binding{m.keys.keep, m.keys.remove, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}

	if m.err != nil {
		msg := fmt.Sprintf("Failed: %v", m.err)
		switch {
		case services.IsAuthError(m.err):
			msg += "\n\nYour Spotify session has ended. Run seedmix tui again to sign in."
			helpKeys = []key.Binding{m.keys.quit}
		case errors.Is(m.err, shared.ErrNoRecommendations):
			msg += "\n\nTry different seed tracks."
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), m.help.ShortHelpView(helpKeys))
	}

	var out string
	switch {
	case m.confirmed == nil:
		out = styles.err.Render("No result available")
	case m.confirmed.Deleted:
		out = styles.ok.Render("Playlist deleted successfully.")
	case m.confirmed.Action == tasks.ActionDelete:
		out = styles.warn.Render("Spotify did not confirm the deletion. Check your library.")
	default:
		out = styles.ok.Render("Playlist kept successfully.") + "\n" + m.result.Playlist.URL
	}
	return fmt.Sprintf("%s\n\n%s", out, m.help.ShortHelpView(helpKeys))
}
