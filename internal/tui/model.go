package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kbase/internal/service"
)

// QueryPort is the TUI-facing subset of the engine.
type QueryPort interface {
	Query(ctx context.Context, question string, opts service.QueryOptions) (service.Answer, error)
}

// Model is the Bubble Tea model for the interactive search UI.
type Model struct {
	engine    QueryPort
	namespace string
	input     textinput.Model
	viewport  viewport.Model
	answer    service.Answer
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a new TUI model instance. A non-empty namespace pins every
// query to that namespace instead of auto-scoping.
func New(engine QueryPort, namespace string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{engine: engine, namespace: namespace, input: ti, viewport: vp, status: "Ready. Type to search."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + scope line
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentHit())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				ans, err := m.engine.Query(context.Background(), q, service.QueryOptions{
					TopK:      10,
					Namespace: m.namespace,
				})
				if err != nil {
					m.status = "Error: " + err.Error()
					m.answer = service.Answer{}
				} else if ans.Empty() {
					m.status = fmt.Sprintf("No matches for %q", q)
					m.answer = ans
				} else {
					m.status = fmt.Sprintf("Results for %q", q)
					m.answer = ans
					m.cursor = 0
					m.lastQuery = q
				}
				m.viewport.SetContent(m.renderCurrentHit())
				return m, nil
			}
		case "down":
			if len(m.answer.Hits) > 0 {
				m.cursor = (m.cursor + 1) % len(m.answer.Hits)
				m.viewport.SetContent(m.renderCurrentHit())
				return m, nil
			}
		case "up":
			if len(m.answer.Hits) > 0 {
				m.cursor = (m.cursor - 1 + len(m.answer.Hits)) % len(m.answer.Hits)
				m.viewport.SetContent(m.renderCurrentHit())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current hit.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("kbase search")
	scope := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.scopeLine())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + scope + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) scopeLine() string {
	switch {
	case m.namespace != "":
		return "namespace: " + m.namespace
	case m.answer.Namespace != "":
		return "auto-scoped to: " + m.answer.Namespace
	default:
		return "namespace: all"
	}
}

func (m Model) renderCurrentHit() string {
	if len(m.answer.Hits) == 0 {
		return "No results yet."
	}
	h := m.answer.Hits[m.cursor]
	cite := m.answer.Citations[m.cursor]
	title := fmt.Sprintf("Result %d/%d  [%s]  score=%.3f", m.cursor+1, len(m.answer.Hits), cite.Label, h.Score)
	body := highlightBestSentence(h.Snippet, m.lastQuery)
	return title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
