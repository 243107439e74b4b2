package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/dshills/uebuild/internal/unreal"
)

// Prompter asks questions on the terminal. Dismissing a prompt (Esc,
// Ctrl-C or an empty answer) is reported as unreal.ErrCancelled.
type Prompter struct {
	accessible bool
	input      io.Reader
	output     io.Writer
}

// PrompterOption configures a Prompter.
type PrompterOption func(*Prompter)

// WithAccessible switches to line-based prompts for screen readers and
// terminals without cursor control.
func WithAccessible(accessible bool) PrompterOption {
	return func(p *Prompter) {
		p.accessible = accessible
	}
}

// WithIO replaces the terminal streams.
func WithIO(in io.Reader, out io.Writer) PrompterOption {
	return func(p *Prompter) {
		p.input = in
		p.output = out
	}
}

// NewPrompter creates a terminal prompter.
func NewPrompter(opts ...PrompterOption) *Prompter {
	p := &Prompter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PromptEnginePath asks for an engine root directory.
func (p *Prompter) PromptEnginePath(ctx context.Context, reason string) (string, error) {
	var answer string
	field := huh.NewInput().
		Title(reason).
		Placeholder("/path/to/UnrealEngine").
		Value(&answer)

	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", unreal.ErrCancelled
	}
	return answer, nil
}

// Select asks the user to pick one of options, starting at def.
func (p *Prompter) Select(ctx context.Context, title string, options []string, def string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("%w: no options for %q", unreal.ErrNotFound, title)
	}

	choice := def
	field := huh.NewSelect[string]().
		Title(title).
		Options(huh.NewOptions(options...)...).
		Value(&choice)

	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(ctx context.Context, title string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().Title(title).Value(&ok)
	if err := p.run(ctx, field); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *Prompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).WithAccessible(p.accessible)
	if p.input != nil {
		form = form.WithInput(p.input)
	}
	if p.output != nil {
		form = form.WithOutput(p.output)
	}
	return mapPromptError(form.RunWithContext(ctx))
}

func mapPromptError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, huh.ErrUserAborted), errors.Is(err, context.Canceled):
		return unreal.ErrCancelled
	default:
		return fmt.Errorf("prompt: %w", err)
	}
}

// AutoPrompter answers every question without user interaction: selects
// return the default (or the first option) and engine path prompts find
// nothing.
type AutoPrompter struct{}

// PromptEnginePath returns an empty answer.
func (AutoPrompter) PromptEnginePath(context.Context, string) (string, error) {
	return "", nil
}

// Select returns def when it is an option, otherwise the first option.
func (AutoPrompter) Select(_ context.Context, title string, options []string, def string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("%w: no options for %q", unreal.ErrNotFound, title)
	}
	for _, o := range options {
		if o == def {
			return def, nil
		}
	}
	return options[0], nil
}

// Confirm always answers yes.
func (AutoPrompter) Confirm(context.Context, string) (bool, error) {
	return true, nil
}
