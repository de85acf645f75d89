package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/balancer/internal/balance"
	"github.com/san-kum/balancer/internal/command"
	"github.com/san-kum/balancer/internal/plant"
	"github.com/san-kum/balancer/internal/sim"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 400
	frameRate       = 60
	pushRate        = 40.0 // deg/s
	driveStep       = 10
)

type TickMsg time.Time

// history is shared between the model copies Bubble Tea passes around and
// the rig's control hook.
type history struct {
	tilt  []float64
	omega []float64
	last  sim.Sample
}

func (h *history) add(s sim.Sample) {
	h.last = s
	h.tilt = appendCapped(h.tilt, s.Tilt)
	h.omega = appendCapped(h.omega, s.OmegaRef)
}

func (h *history) reset() {
	h.tilt = h.tilt[:0]
	h.omega = h.omega[:0]
	h.last = sim.Sample{}
}

func appendCapped(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyCapacity {
		xs = xs[1:]
	}
	return xs
}

// Model drives a rig in robot time and renders it.
type Model struct {
	rig         *sim.Rig
	initialTilt float64
	hist        *history
	canvas      *Canvas
	theme       Theme

	running  bool
	speed    float64
	keys     []string
	selected int
	drive    command.Command
	showHelp bool
	status   string
}

// NewModel starts the rig at initialTilt degrees.
func NewModel(rig *sim.Rig, initialTilt float64) Model {
	keys := make([]string, 0)
	for k := range rig.Loop().Tunables() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := &history{}
	rig.OnControl(h.add)
	rig.Start(initialTilt)

	return Model{
		rig:         rig,
		initialTilt: initialTilt,
		hist:        h,
		canvas:      NewCanvas(width, height),
		theme:       Themes[0],
		running:     true,
		speed:       1,
		keys:        keys,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.hist.reset()
			m.rig.Start(m.initialTilt)
			m.status = "reset"
		case "tab":
			if len(m.keys) > 0 {
				m.selected = (m.selected + 1) % len(m.keys)
			}
		case "shift+tab":
			if len(m.keys) > 0 {
				m.selected = (m.selected + len(m.keys) - 1) % len(m.keys)
			}
		case "up", "k":
			m.adjust(1.05)
		case "down", "j":
			m.adjust(0.95)
		case "p":
			m.rig.World().Push(pushRate)
		case "o":
			m.rig.World().Push(-pushRate)
		case "w":
			m.setDrive(int(m.drive.Turn), int(m.drive.Speed)+driveStep)
		case "s":
			m.setDrive(int(m.drive.Turn), int(m.drive.Speed)-driveStep)
		case "a":
			m.setDrive(int(m.drive.Turn)-driveStep, int(m.drive.Speed))
		case "d":
			m.setDrive(int(m.drive.Turn)+driveStep, int(m.drive.Speed))
		case "x":
			m.setDrive(0, 0)
		case "e":
			if m.rig.Loop().Toggle() {
				m.status = "motors on"
			} else {
				m.status = "motors off"
			}
		case "+", "=":
			m.speed = math.Min(8, m.speed*2)
		case "-", "_":
			m.speed = math.Max(0.125, m.speed/2)
		case "t":
			m.theme = m.theme.next()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.rig.Step(m.frameStep())
		}
		return m, tick()
	}
	return m, nil
}

// frameStep is the robot time covered by one frame, whole milliseconds.
func (m Model) frameStep() time.Duration {
	d := time.Duration(float64(time.Second/frameRate) * m.speed)
	return max(d.Round(time.Millisecond), time.Millisecond)
}

func (m *Model) adjust(factor float64) {
	if len(m.keys) == 0 {
		return
	}
	key := m.keys[m.selected]
	v := m.rig.Loop().Tunables()[key]
	nv := v * factor
	if v == 0 {
		nv = math.Copysign(0.01, factor-1)
	}
	if err := m.rig.Loop().SetParam(key, nv); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s = %.4g", key, nv)
}

func (m *Model) setDrive(turn, speed int) {
	m.drive = command.Command{Turn: clampInt8(turn), Speed: clampInt8(speed)}
	m.rig.Mailbox().Post(m.drive)
	m.status = m.drive.String()
}

func clampInt8(v int) int8 {
	return int8(max(math.MinInt8, min(math.MaxInt8, v)))
}

func (m Model) stageStyle(s balance.Stage) lipgloss.Style {
	c := m.theme.OK
	switch s {
	case balance.StageBraking, balance.StageKicking:
		c = m.theme.Warning
	case balance.StageFailed:
		c = m.theme.Error
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

func (m Model) View() string {
	x := m.rig.World().State()
	m.canvas.Clear()
	DrawRobot(m.canvas, x.X(m.rig.World().Robot().P.WheelRadius), x[plant.PhiL], x[plant.Alpha])

	header := lipgloss.NewStyle().Foreground(m.theme.Primary).Bold(true).MarginBottom(1)
	label := lipgloss.NewStyle().Foreground(m.theme.Muted).Width(12)
	value := lipgloss.NewStyle().Foreground(m.theme.Text)
	active := lipgloss.NewStyle().Foreground(m.theme.Accent).Bold(true)

	smp := m.hist.last
	row := func(name, v string) string {
		return label.Render(name) + value.Render(v) + "\n"
	}

	var s strings.Builder
	s.WriteString(header.Render("BALANCER") + "\n")
	status := "RUNNING"
	if !m.running {
		status = "PAUSED"
	}
	s.WriteString(fmt.Sprintf("%s  %s  x%.3g\n\n", status, m.stageStyle(smp.Stage).Render(strings.ToUpper(smp.Stage.String())), m.speed))

	s.WriteString(row("Time", fmt.Sprintf("%.2fs", m.rig.Elapsed().Seconds())))
	s.WriteString(row("Tilt", fmt.Sprintf("%+.2f° (true %+.2f°)", smp.Tilt, smp.TrueTilt)))
	s.WriteString(row("Rate", fmt.Sprintf("%+.1f°/s", smp.TiltRate)))
	s.WriteString(row("ω ref", fmt.Sprintf("%+.2f rad/s", smp.OmegaRef)))
	s.WriteString(row("Wheels", fmt.Sprintf("%+.1f %+.1f rad/s", smp.SpeedL, smp.SpeedR)))
	s.WriteString(row("Position", fmt.Sprintf("%+.3f m", smp.X)))
	s.WriteString(row("Drive", m.drive.String()))
	s.WriteString(row("Motors", fmt.Sprintf("%v", m.rig.Loop().Enabled())))

	if len(m.hist.tilt) > 1 {
		chart := asciigraph.Plot(m.hist.tilt, asciigraph.Height(5), asciigraph.Width(36), asciigraph.Caption("tilt °"))
		s.WriteString("\n" + lipgloss.NewStyle().Foreground(m.theme.Primary).Render(chart) + "\n")
	}

	s.WriteString("\nTUNING\n")
	tun := m.rig.Loop().Tunables()
	for i, k := range m.keys {
		line := fmt.Sprintf("%-16s %10.4g", k, tun[k])
		if i == m.selected {
			s.WriteString(active.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + value.Render(line) + "\n")
		}
	}
	if m.status != "" {
		s.WriteString("\n" + active.Render(m.status) + "\n")
	}
	s.WriteString(lipgloss.NewStyle().Foreground(m.theme.Muted).MarginTop(1).Render(
		"SP:Pause R:Reset Q:Quit ?:Help\nTab ↑↓:Tune P/O:Push WASD:Drive"))

	stats := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(m.theme.Muted).
		Padding(1, 2).
		Width(48).
		Render(s.String())
	scene := lipgloss.NewStyle().Padding(1, 2).Foreground(m.theme.Text).Render(m.canvas.String())
	main := lipgloss.JoinHorizontal(lipgloss.Top, scene, stats)

	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

const helpText = `
  Space    pause / resume
  R        stand the robot up again
  Tab      next tunable (Shift+Tab previous)
  Up/Down  scale tunable by ±5%
  P / O    push forwards / backwards
  W / S    drive speed up / down
  A / D    turn left / right
  X        stop driving
  E        toggle motors
  + / -    simulation speed
  T        cycle theme
  Q        quit
`

// Run shows the live view until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
