// Package tui provides terminal output components for lanes.
package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dongho-jung/lanes/internal/logging"
)

// Spinner is a bubbletea model showing a spinner next to a message that the
// running task can update.
type Spinner struct {
	spinner spinner.Model
	message string
	done    bool
	result  string
	err     error
}

// SpinnerStatusMsg replaces the spinner message.
type SpinnerStatusMsg string

// SpinnerDoneMsg is sent when the spinner task is complete.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = accentStyle
	return &Spinner{spinner: s, message: message}
}

// Init starts the animation.
func (m *Spinner) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model.
func (m *Spinner) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// A running merge cannot be cancelled; ctrl+c only hides the spinner.
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case SpinnerStatusMsg:
		m.message = string(msg)

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the spinner line.
func (m *Spinner) View() string {
	if m.done {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("✗ %s: %v", m.message, m.err)) + "\n"
		}
		if m.result != "" {
			return successStyle.Render(fmt.Sprintf("✓ %s: %s", m.message, m.result)) + "\n"
		}
		return successStyle.Render("✓ "+m.message) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
}

// RunSpinner runs task while showing a spinner. The task may call status to
// change the message.
func RunSpinner(message string, task func(status func(string)) (string, error)) (string, error) {
	m := NewSpinner(message)
	p := tea.NewProgram(m)

	var result string
	var taskErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, taskErr = task(func(s string) { p.Send(SpinnerStatusMsg(s)) })
		p.Send(SpinnerDoneMsg{Result: result, Err: taskErr})
	}()

	if _, err := p.Run(); err != nil {
		logging.Debug("spinner: %v", err)
	}
	// The task keeps running if the user hid the spinner.
	<-finished
	return result, taskErr
}

// spinnerFrames are the animation frames for the SimpleSpinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SimpleSpinner provides a non-interactive spinner for pipes and scripts.
type SimpleSpinner struct {
	out     io.Writer
	mu      sync.Mutex
	message string
	done    chan struct{}
	stopped chan struct{}
	frame   int
	animate bool
}

// NewSimpleSpinner creates a new simple spinner writing to out. When animate
// is false only the final line is written.
func NewSimpleSpinner(out io.Writer, message string, animate bool) *SimpleSpinner {
	return &SimpleSpinner{
		out:     out,
		message: message,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		animate: animate,
	}
}

// SetMessage replaces the message.
func (s *SimpleSpinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
	if !s.animate {
		fmt.Fprintf(s.out, "  … %s\n", message)
	}
}

// Start starts the spinner animation.
func (s *SimpleSpinner) Start() {
	if !s.animate {
		close(s.stopped)
		return
	}
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := spinnerFrames[s.frame%len(spinnerFrames)]
				fmt.Fprintf(s.out, "\r  %s %s", frame, s.message)
				s.frame++
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and shows the result.
func (s *SimpleSpinner) Stop(success bool, result string) {
	close(s.done)
	<-s.stopped

	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := "\r"
	if !s.animate {
		prefix = ""
	}
	mark := "✓"
	if !success {
		mark = "✗"
	}
	fmt.Fprintf(s.out, "%s  %s %s", prefix, mark, s.message)
	if result != "" {
		fmt.Fprintf(s.out, ": %s", result)
	}
	fmt.Fprintln(s.out)
}
