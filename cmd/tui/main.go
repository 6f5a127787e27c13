// linechat-tui is a minimal terminal client for the line chat server: a
// login screen followed by a scrollable chat view, in the style of a
// small Bubbletea program.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pankaj/linechat/internal/chatclient"
)

var (
	purple = lipgloss.Color("99")
	gray   = lipgloss.Color("241")
	red    = lipgloss.Color("196")
	white  = lipgloss.Color("255")

	headerStyle = lipgloss.NewStyle().Bold(true).Background(purple).Foreground(white).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(gray).Padding(0, 1)
	hintStyle  = lipgloss.NewStyle().Foreground(gray).Italic(true)
	errStyle   = lipgloss.NewStyle().Foreground(red)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(purple).Padding(0, 2)
)

type appState int

const (
	stateLogin appState = iota
	stateChat
)

type serverLineMsg string
type disconnectedMsg struct{}

type model struct {
	addr string

	state appState
	login textinput.Model
	err   string

	client *chatclient.Client
	lines  <-chan string

	ready     bool
	viewport  viewport.Model
	input     textinput.Model
	chatLines []string

	width, height int
}

func newModel(addr string) model {
	l := textinput.New()
	l.Placeholder = "your name"
	l.Focus()
	l.CharLimit = 50
	l.Width = 32

	ci := textinput.New()
	ci.Placeholder = "CONNECT:bob, GROUP:team:hi, or free text…"
	ci.CharLimit = 4000

	return model{addr: addr, state: stateLogin, login: l, input: ci}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.input.Width = msg.Width - 4
		return m, nil

	case serverLineMsg:
		m.appendChat(string(msg))
		return m, waitForLine(m.lines)

	case disconnectedMsg:
		m.appendChat(errStyle.Render("disconnected from server"))
		return m, tea.Quit

	case tea.KeyMsg:
		if m.state == stateLogin {
			return m.handleLoginKey(msg)
		}
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m model) vpHeight() int {
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		name := strings.TrimSpace(m.login.Value())
		if name == "" {
			m.err = "name is required"
			return m, nil
		}
		c, lines, err := connect(m.addr, name)
		if err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.client = c
		m.lines = lines
		m.state = stateChat
		m.input.Focus()
		return m, waitForLine(m.lines)
	}
	var cmd tea.Cmd
	m.login, cmd = m.login.Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.client.Send("DISCONNECT_CHAT")
		m.client.Close()
		return m, tea.Quit
	case tea.KeyEnter:
		line := strings.TrimSpace(m.input.Value())
		if line != "" {
			m.client.Send(line)
			m.input.Reset()
		}
		return m, nil
	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil
	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if m.state == stateLogin {
		return m.viewLogin()
	}
	return m.viewChat()
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting…"
	}
	form := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  linechat  "),
		"",
		"  "+m.login.View(),
		"",
		hintStyle.Render("Enter: connect   Ctrl+C: quit"),
	)
	if m.err != "" {
		form = lipgloss.JoinVertical(lipgloss.Left, form, "", errStyle.Render("  "+m.err))
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}
	hdr := headerStyle.Width(m.width).Render(fmt.Sprintf(" linechat  ·  %s  ·  PgUp/Dn: scroll  Ctrl+C: quit", m.client.Name))
	footer := footerStyle.Width(m.width - 2).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

func waitForLine(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverLineMsg(line)
	}
}

// connect dials the server and starts a goroutine bridging its reader into
// a channel the Bubbletea event loop can consume one line at a time.
func connect(addr, name string) (*chatclient.Client, <-chan string, error) {
	c, err := chatclient.Dial(addr, name, 5*time.Second)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan string, 64)
	go func() {
		defer close(ch)
		for {
			line, err := c.ReadLine()
			if err != nil {
				return
			}
			ch <- line
		}
	}()
	return c, ch, nil
}

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 10000, "server port")
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	p := tea.NewProgram(newModel(addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
