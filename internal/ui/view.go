package ui

import (
	"context"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/uebuild/internal/integration/task"
)

// OutputView shows an output sink full screen. It follows new output
// until the user scrolls up; End resumes following.
type OutputView struct {
	screen tcell.Screen
	sink   *task.OutputSink
	title  string

	mu     sync.Mutex
	status string
	top    int
	follow bool
}

// NewOutputView creates a view over an initialised screen.
func NewOutputView(screen tcell.Screen, sink *task.OutputSink, title string) *OutputView {
	return &OutputView{
		screen: screen,
		sink:   sink,
		title:  title,
		follow: true,
	}
}

// SetStatus replaces the status line text.
func (v *OutputView) SetStatus(status string) {
	v.mu.Lock()
	v.status = status
	v.mu.Unlock()
}

// Draw renders the title bar, the visible lines and the status line.
func (v *OutputView) Draw() {
	v.mu.Lock()
	defer v.mu.Unlock()

	width, height := v.screen.Size()
	v.screen.Clear()
	if width <= 0 || height < 3 {
		v.screen.Show()
		return
	}

	barStyle := tcell.StyleDefault.Reverse(true)
	errStyle := tcell.StyleDefault.Foreground(tcell.ColorRed)

	lines := v.sink.Lines()
	body := height - 2
	if v.follow {
		v.top = max(0, len(lines)-body)
	}
	v.top = clamp(v.top, 0, max(0, len(lines)-body))

	drawText(v.screen, 0, 0, width, v.title, barStyle)
	for row := 0; row < body; row++ {
		i := v.top + row
		if i >= len(lines) {
			break
		}
		style := tcell.StyleDefault
		if lines[i].Stream == task.OutputStreamStderr {
			style = errStyle
		}
		drawText(v.screen, 0, row+1, width, lines[i].Content, style)
	}
	drawText(v.screen, 0, height-1, width, v.status, barStyle)

	v.screen.Show()
}

// HandleKey applies a key press and reports whether the view should close.
func (v *OutputView) HandleKey(ev *tcell.EventKey) bool {
	_, height := v.screen.Size()
	page := max(1, height-2)

	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Key() {
	case tcell.KeyUp:
		v.scroll(-1)
	case tcell.KeyDown:
		v.scroll(1)
	case tcell.KeyPgUp:
		v.scroll(-page)
	case tcell.KeyPgDn:
		v.scroll(page)
	case tcell.KeyHome:
		v.follow = false
		v.top = 0
	case tcell.KeyEnd:
		v.follow = true
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 'k':
			v.scroll(-1)
		case 'j':
			v.scroll(1)
		case 'G':
			v.follow = true
		case 'g':
			v.follow = false
			v.top = 0
		}
	}
	return false
}

// scroll moves the window; callers hold mu.
func (v *OutputView) scroll(delta int) {
	_, height := v.screen.Size()
	maxTop := max(0, v.sink.Len()-(height-2))
	if v.follow {
		v.top = maxTop
	}
	v.top = clamp(v.top+delta, 0, maxTop)
	v.follow = v.top == maxTop && delta > 0
}

// Top returns the index of the first visible line.
func (v *OutputView) Top() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top
}

// Run redraws every interval until the user closes the view or ctx is
// done. It returns true when the user closed the view.
func (v *OutputView) Run(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	v.Draw()
	for {
		select {
		case <-ctx.Done():
			v.Draw()
			return false
		case <-ticker.C:
			v.Draw()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if v.HandleKey(ev) {
					return true
				}
				v.Draw()
			case *tcell.EventResize:
				v.screen.Sync()
				v.Draw()
			}
		}
	}
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	col := x
	for _, r := range text {
		if col >= width {
			return
		}
		if r == '\t' {
			r = ' '
		}
		screen.SetContent(col, y, r, nil, style)
		col++
	}
	for ; col < width && style != tcell.StyleDefault; col++ {
		screen.SetContent(col, y, ' ', nil, style)
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
