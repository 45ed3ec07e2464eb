package domain

import (
	"context"
	"fmt"

	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/oops"
)

// Context is the per-invocation handle a command action runs against:
// the triggering chat message and a way to answer it.
type Context interface {
	UserID() int64
	ChatID() int64
	Text() string
	Reply(ctx context.Context, text string) error
}

// Action runs a command with its validated argument list.
type Action func(ctx context.Context, c Context, args []string) error

// Options describe a command before validation.
type Options struct {
	Name        string
	Hint        string
	Description string
	MinArgs     int
	MaxArgs     int
	Action      Action
}

// Command is a named action bound to chat text of the form "/name arg...".
type Command struct {
	Name        string
	Hint        string
	Description string
	MinArgs     int
	MaxArgs     int
	Action      Action
}

// NewCommand validates opts. A bad definition is a configuration error.
func NewCommand(opts Options) (*Command, error) {
	switch {
	case opts.Name == "":
		return nil, errors.Configuration(fmt.Errorf("command name is empty"))
	case opts.Action == nil:
		return nil, oops.With("command", opts.Name).Wrap(errors.Configuration(fmt.Errorf("command has no action")))
	case opts.MinArgs < 0:
		return nil, oops.With("command", opts.Name).Wrap(errors.Configuration(fmt.Errorf("minArgs %d is negative", opts.MinArgs)))
	case opts.MinArgs > opts.MaxArgs:
		return nil, oops.With("command", opts.Name).
			Wrap(errors.Configuration(fmt.Errorf("minArgs %d exceeds maxArgs %d", opts.MinArgs, opts.MaxArgs)))
	}

	return &Command{
		Name:        opts.Name,
		Hint:        opts.Hint,
		Description: opts.Description,
		MinArgs:     opts.MinArgs,
		MaxArgs:     opts.MaxArgs,
		Action:      opts.Action,
	}, nil
}

// MustCommand is NewCommand for static definitions; it panics on a bad one.
func MustCommand(opts Options) *Command {
	cmd, err := NewCommand(opts)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Accepts reports whether n arguments fall within [MinArgs, MaxArgs].
func (c *Command) Accepts(n int) bool {
	return n >= c.MinArgs && n <= c.MaxArgs
}

// Usage is the display form, e.g. "/sub <channel id>".
func (c *Command) Usage() string {
	if c.Hint != "" {
		return "/" + c.Hint
	}
	return "/" + c.Name
}

// HelpLine renders the command for the help listing.
func (c *Command) HelpLine() string {
	if c.Description == "" {
		return c.Usage()
	}
	return c.Usage() + " - " + c.Description
}
