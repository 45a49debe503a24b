// Package tui renders the applied pose in the terminal. The model is a
// fixed-cadence consumer: every tick it reads the latest pose once.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"posebridge/pkg/render"
	"posebridge/pkg/transport"
)

// StateSource reports the receiver lifecycle for the status line.
type StateSource interface {
	State() transport.State
}

type tickMsg time.Time

type Model struct {
	source render.PoseSource
	states StateSource
	scale  render.Scale
	tick   time.Duration

	transform render.Transform
	state     transport.State
	ticks     uint64
	changes   uint64
}

func NewModel(source render.PoseSource, states StateSource, scale render.Scale, tick time.Duration) Model {
	if tick <= 0 {
		tick = render.DefaultTick
	}
	return Model{source: source, states: states, scale: scale, tick: tick}
}

func (m Model) Init() tea.Cmd {
	return m.nextTick()
}

func (m Model) nextTick() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m = m.step()
		return m, m.nextTick()
	}
	return m, nil
}

func (m Model) step() Model {
	next := render.Apply(m.source.LatestPose(), m.scale)
	if next != m.transform {
		m.changes++
	}
	m.transform = next
	if m.states != nil {
		m.state = m.states.State()
	}
	m.ticks++
	return m
}

func (m Model) Transform() render.Transform {
	return m.transform
}

func (m Model) View() string {
	var b strings.Builder
	tf := m.transform
	roll, pitch, yaw := tf.Euler()

	fmt.Fprintf(&b, "posed  %s\n\n", m.state)
	fmt.Fprintf(&b, "  rotation  w=% .4f x=% .4f y=% .4f z=% .4f\n",
		tf.Rotation.Real, tf.Rotation.Imag, tf.Rotation.Jmag, tf.Rotation.Kmag)
	fmt.Fprintf(&b, "  euler     roll=% 8.2f pitch=% 8.2f yaw=% 8.2f\n", roll, pitch, yaw)
	fmt.Fprintf(&b, "  position  x=% .4f y=% .4f z=% .4f\n", tf.Position.X, tf.Position.Y, tf.Position.Z)
	fmt.Fprintf(&b, "  scale     x=%g y=%g z=%g\n\n", m.scale.X, m.scale.Y, m.scale.Z)
	fmt.Fprintf(&b, "  ticks %d  updates %d  (q to quit)\n", m.ticks, m.changes)
	return b.String()
}
