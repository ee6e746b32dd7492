// Package tui renders sweep progress and run summaries in the terminal.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/scenario"
	"github.com/san-kum/railsim/internal/sim"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/vehicle"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const (
	barWidth     = 36
	historySize  = 120
	sparkWidth   = 48
	visibleDone  = 8
	defaultFrame = 50 * time.Millisecond
)

type pointStartedMsg struct {
	point scenario.Point
	total int
}

type pointFinishedMsg struct{ outcome scenario.Outcome }

type sampleMsg struct{ entry solution.Entry }

type doneMsg struct{ err error }

type finished struct {
	point  scenario.Point
	ramp   bool
	code   dynamo.Code
	steps  int
	metric string
}

type model struct {
	title  string
	cancel context.CancelFunc

	total    int
	current  scenario.Point
	t0, t1   float64
	t        float64
	active   bool
	timed    bool
	done     []finished
	history  []float64
	probe    string
	lastErr  error
	complete bool
	aborted  bool
	width    int
}

func newModel(title, probe string, cancel context.CancelFunc) model {
	return model{
		title:   title,
		probe:   probe,
		cancel:  cancel,
		history: make([]float64, 0, historySize),
		width:   80,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.aborted = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case pointStartedMsg:
		m.total = msg.total
		m.current = msg.point
		m.active = true
		m.timed = false
		m.history = m.history[:0]
	case pointFinishedMsg:
		m.active = false
		m.done = append(m.done, summarize(msg.outcome))
	case sampleMsg:
		m.t = msg.entry.T
		if !m.timed {
			m.t0, m.t1 = m.t, m.t+m.current.Duration
			m.timed = true
		}
		if v, ok := probeValue(msg.entry, m.probe); ok {
			if len(m.history) == historySize {
				m.history = m.history[1:]
			}
			m.history = append(m.history, v)
		}
	case doneMsg:
		m.complete = true
		m.lastErr = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func summarize(o scenario.Outcome) finished {
	f := finished{point: o.Point, ramp: o.Ramp, code: dynamo.CodeOf(o.Err)}
	if o.Err == nil {
		f.code = dynamo.CodeSuccess
	}
	if o.Result != nil {
		f.steps = o.Result.Stats.Steps
		if v, ok := o.Result.Metrics["max_lateral"]; ok && !math.IsNaN(v) {
			f.metric = fmt.Sprintf("lat %.3g N", v)
		}
		if v, ok := o.Result.Metrics["hunting_amplitude"]; ok && v > 0 {
			f.metric += fmt.Sprintf("  hunt %.2g m", v)
		}
	}
	return f
}

// probeValue reads "<component>.<field>" from the entry status.
func probeValue(e solution.Entry, probe string) (float64, bool) {
	comp, field, ok := strings.Cut(probe, ".")
	if !ok {
		return 0, false
	}
	st, ok := e.Component(comp)
	if !ok {
		return 0, false
	}
	names, values := st.Fields()
	for i, n := range names {
		if n == field {
			return values[i], true
		}
	}
	return 0, false
}

func (m model) View() string {
	var b strings.Builder

	icon, status := green.Render("●"), green.Render("running")
	switch {
	case m.aborted:
		icon, status = yellow.Render("○"), yellow.Render("cancelled")
	case m.complete && m.lastErr != nil:
		icon, status = red.Render("✗"), red.Render(dynamo.CodeOf(m.lastErr).String())
	case m.complete:
		icon, status = green.Render("✓"), green.Render("done")
	}
	fmt.Fprintf(&b, "\n   %s %s  %s\n", icon, cyan.Render(m.title), status)

	finishedPoints := 0
	for _, f := range m.done {
		if !f.ramp {
			finishedPoints++
		}
	}
	label := fmt.Sprintf("points %d/%d", finishedPoints, m.total)
	fmt.Fprintf(&b, "   %s %s\n", bar(ratio(float64(finishedPoints), float64(m.total))), dim.Render(label))

	if m.active {
		fmt.Fprintf(&b, "   %s %s\n", bar(ratio(m.t-m.t0, m.t1-m.t0)), dim.Render(fmt.Sprintf("t=%.3fs", m.t)))
		fmt.Fprintf(&b, "   %s\n", white.Render(m.current.String()))
	}

	if len(m.history) > 1 {
		fmt.Fprintf(&b, "\n   %s %s\n", dim.Render(m.probe), cyan.Render(sparkline(m.history, sparkWidth)))
	}

	if len(m.done) > 0 {
		b.WriteString("\n")
		start := max(len(m.done)-visibleDone, 0)
		for _, f := range m.done[start:] {
			b.WriteString("   " + f.render() + "\n")
		}
	}

	if !m.complete && !m.aborted {
		b.WriteString("\n" + dim.Render("   q cancel") + "\n")
	}
	return b.String()
}

func (f finished) render() string {
	icon := green.Render("●")
	if f.code != dynamo.CodeSuccess {
		icon = red.Render("✗")
	}
	name := f.point.String()
	if f.ramp {
		name = "ramp " + name
	}
	return fmt.Sprintf("%s %s %s %s", icon, white.Render(name), dim.Render(fmt.Sprintf("%d steps", f.steps)), dimmer.Render(f.metric))
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return math.Min(math.Max(a/b, 0), 1)
}

func bar(progress float64) string {
	filled := int(progress * barWidth)
	return cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := max(len(data)/width, 1)
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / rang * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}

var (
	_ scenario.Listener = (*Tracker)(nil)
	_ sim.Observer      = (*Tracker)(nil)
)

// Tracker forwards scenario and sample events to the progress view. It
// implements scenario.Listener and sim.Observer. Samples are forwarded at
// most once per frame.
type Tracker struct {
	send  func(tea.Msg)
	frame time.Duration

	mu   sync.Mutex
	last time.Time
}

func (t *Tracker) PointStarted(p scenario.Point, total int) {
	t.send(pointStartedMsg{point: p, total: total})
}

func (t *Tracker) PointFinished(o scenario.Outcome) {
	t.send(pointFinishedMsg{outcome: o})
}

func (t *Tracker) OnSample(e solution.Entry) {
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.last) < t.frame {
		t.mu.Unlock()
		return
	}
	t.last = now
	t.mu.Unlock()
	t.send(sampleMsg{entry: e})
}

// Options configure the progress view.
type Options struct {
	Title string

	// Probe is the "<component>.<field>" plotted while a point runs.
	Probe string

	// Frame is the minimum time between forwarded samples.
	Frame time.Duration

	// ProgramOptions are passed to the bubbletea program.
	ProgramOptions []tea.ProgramOption
}

// DefaultProbe is the lateral displacement of the first wheelset of the
// coach preset.
const DefaultProbe = "ws1.Y"

// Run shows progress while work runs. Quitting the view cancels the context
// passed to work; Run waits for work to return and returns its error.
func Run(ctx context.Context, opts Options, work func(ctx context.Context, t *Tracker) error) error {
	if opts.Probe == "" {
		opts.Probe = DefaultProbe
	}
	if opts.Frame <= 0 {
		opts.Frame = defaultFrame
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(opts.Title, opts.Probe, cancel), opts.ProgramOptions...)
	tracker := &Tracker{send: p.Send, frame: opts.Frame}

	errc := make(chan error, 1)
	go func() {
		err := work(ctx, tracker)
		errc <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errc
		return err
	}
	cancel()
	return <-errc
}

// ProbeFor picks the lateral displacement of the first wheelset of m.
func ProbeFor(m *vehicle.Model) string {
	if ws := m.WheelSets(); len(ws) > 0 {
		return ws[0].Name() + ".Y"
	}
	return DefaultProbe
}
