// Package tui is the terminal chat front end of the tutor.
package tui

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"tutor/internal/course"
	"tutor/internal/service"
	"tutor/internal/session"
)

// TutorPort is the TUI-facing subset of the orchestrator.
type TutorPort interface {
	HandleTurn(ctx context.Context, sess *session.Session, in service.TurnInput) (*service.Stream, error)
	Advance(ctx context.Context, sess *session.Session) (*service.Stream, error)
}

const stepsWidth = 34

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx    context.Context
	tutor  TutorPort
	sess   *session.Session
	course course.Course

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	// streamID tags messages of the current turn; older turns are ignored.
	streamID int
	stream   *service.Stream
	partial  string
	pending  *service.Attachment

	showRefs bool
	status   string
	ready    bool
}

type turnStartedMsg struct {
	id     int
	stream *service.Stream
	err    error
}

type partialMsg struct {
	id   int
	text string
}

type turnDoneMsg struct {
	id    int
	reply *service.Reply
	err   error
}

// New creates the chat model for sess.
func New(ctx context.Context, tutor TutorPort, sess *session.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask the tutor, or /attach <image>, /next, /reset, /objective N"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	// Letter keys belong to the input; the transcript only scrolls on arrows and paging.
	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		Up:       key.NewBinding(key.WithKeys("up")),
		Down:     key.NewBinding(key.WithKeys("down")),
	}
	r, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	return Model{
		ctx:      ctx,
		tutor:    tutor,
		sess:     sess,
		course:   sess.Course(),
		input:    ti,
		viewport: vp,
		spinner:  sp,
		renderer: r,
		status:   "Say hello to start the first objective.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and turn events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box
		m.viewport.Width = max(20, msg.Width-stepsWidth-4)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.cancelTurn()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.stream != nil {
				m.cancelTurn()
				m.status = "Response cancelled."
				m.refresh()
			}
			return m, nil
		case tea.KeyCtrlR:
			m.showRefs = !m.showRefs
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" && m.pending == nil {
				return m, nil
			}
			m.input.Reset()
			return m.submit(line)
		}

	case turnStartedMsg:
		if msg.id != m.streamID {
			return m, nil
		}
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.stream = msg.stream
		m.status = "Thinking..."
		if err := msg.stream.AttachmentErr(); err != nil {
			m.status = "Image upload failed, sent text only: " + err.Error()
		}
		m.refresh()
		return m, tea.Batch(waitStream(msg.id, msg.stream), m.spinner.Tick)

	case partialMsg:
		if msg.id != m.streamID || m.stream == nil {
			return m, nil
		}
		m.partial = msg.text
		m.refresh()
		return m, waitStream(msg.id, m.stream)

	case turnDoneMsg:
		if msg.id != m.streamID {
			return m, nil
		}
		m.stream = nil
		m.partial = ""
		m.status = m.turnStatus(msg.reply, msg.err)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.stream == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		m.cancelTurn()
		return m, tea.Quit

	case "/attach":
		a, err := readAttachment(arg)
		if err != nil {
			m.status = "Error: " + err.Error()
		} else {
			m.pending = a
			m.status = fmt.Sprintf("Attached %s. It will be sent with your next message.", a.Name)
		}
		return m, nil

	case "/reset":
		m.cancelTurn()
		m.sess.Reset()
		m.status = "Chat reset."
		m.refresh()
		return m, nil

	case "/objective":
		n, err := strconv.Atoi(arg)
		if err != nil {
			m.status = fmt.Sprintf("Usage: /objective N (1-%d)", m.course.Len())
			return m, nil
		}
		if err := m.sess.SetObjective(n - 1); err != nil {
			m.status = "Error: " + err.Error()
			return m, nil
		}
		m.cancelTurn()
		m.status = fmt.Sprintf("Switched to objective %d.", n)
		m.refresh()
		return m, nil

	case "/next":
		snap := m.sess.Snapshot()
		switch {
		case !snap.Completed:
			m.status = "Complete the current objective first."
			return m, nil
		case snap.IsLast:
			m.status = congratulations(m.course, snap.Objective, true)
			return m, nil
		}
		m.cancelTurn()
		m.streamID++
		id := m.streamID
		ctx, tutor, sess := m.ctx, m.tutor, m.sess
		m.status = "Moving on..."
		return m, func() tea.Msg {
			st, err := tutor.Advance(ctx, sess)
			return turnStartedMsg{id: id, stream: st, err: err}
		}
	}

	in := service.TurnInput{Text: line, Attachment: m.pending}
	m.pending = nil
	m.streamID++
	m.stream = nil
	m.partial = ""
	id := m.streamID
	ctx, tutor, sess := m.ctx, m.tutor, m.sess
	m.status = "Sending..."
	return m, func() tea.Msg {
		st, err := tutor.HandleTurn(ctx, sess, in)
		return turnStartedMsg{id: id, stream: st, err: err}
	}
}

// View renders the steps panel, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	snap := m.sess.Snapshot()
	header := lipgloss.NewStyle().Bold(true).Render(m.course.Title)
	steps := stepsBoxStyle.Width(stepsWidth).Render(renderSteps(m.course, snap.Objective, snap.Completed))
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, steps, transcript)
	status := m.status
	if m.stream != nil {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + body + "\n" + inputBoxStyle.Render(m.input.View()) + "\n" + statusStyle.Render(status)
}

func (m *Model) refresh() {
	content := RenderTranscript(m.sess.Visible(), m.showRefs, m.markdown)
	if m.stream != nil && m.partial != "" {
		content += tutorStyle.Render("Tutor:") + "\n" + m.partial + "\n"
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *Model) cancelTurn() {
	if m.stream != nil {
		m.stream.Cancel()
	}
	m.sess.CancelTurn()
	m.streamID++
	m.stream = nil
	m.partial = ""
}

func (m Model) markdown(s string) string {
	if m.renderer == nil {
		return s
	}
	out, err := m.renderer.Render(s)
	if err != nil {
		return s
	}
	return out
}

func (m Model) turnStatus(reply *service.Reply, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Response cancelled."
	case err != nil:
		return "Error: " + err.Error()
	case reply == nil:
		return ""
	case reply.Failed:
		return "The tutor could not answer. Try again."
	case reply.ObjectiveCompleted:
		snap := m.sess.Snapshot()
		return congratulations(m.course, snap.Objective, snap.IsLast)
	}
	return "Ready."
}

func waitStream(id int, st *service.Stream) tea.Cmd {
	return func() tea.Msg {
		if text, ok := <-st.Partials(); ok {
			return partialMsg{id: id, text: text}
		}
		reply, err := st.Wait()
		return turnDoneMsg{id: id, reply: reply, err: err}
	}
}

func readAttachment(path string) (*service.Attachment, error) {
	if path == "" {
		return nil, errors.New("usage: /attach <path>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%s is not an image", filepath.Base(path))
	}
	return &service.Attachment{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	stepsBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
