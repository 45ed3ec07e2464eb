package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/reshetovitsme/notify-relay/internal/modules/command/domain"
)

// Dispatcher parses chat text into commands and runs the matching action.
// Text that matches nothing, or matches with the wrong number of
// arguments, goes to the fallback.
type Dispatcher struct {
	mu       sync.RWMutex
	username string
	order    []string
	commands map[string]*domain.Command
	fallback domain.Action
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]*domain.Command),
	}
}

// Register adds commands in order. Registering a name again replaces the
// earlier binding and keeps its place in the help listing.
func (d *Dispatcher) Register(cmds ...*domain.Command) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cmd := range cmds {
		if _, exists := d.commands[cmd.Name]; !exists {
			d.order = append(d.order, cmd.Name)
		}
		d.commands[cmd.Name] = cmd
		slog.Debug("Registered command", "command", "/"+cmd.Name)
	}
	return d
}

// SetUsername sets the bot username commands may be addressed to, as in
// "/help@name". Commands addressed to another bot are ignored. Until it is
// set, any addressee is accepted.
func (d *Dispatcher) SetUsername(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.username = strings.TrimPrefix(username, "@")
}

// SetFallback sets the single catch-all action.
func (d *Dispatcher) SetFallback(action domain.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = action
}

func (d *Dispatcher) Get(name string) (*domain.Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cmd, ok := d.commands[name]
	return cmd, ok
}

// Commands returns the registered commands in registration order.
func (d *Dispatcher) Commands() []*domain.Command {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cmds := make([]*domain.Command, 0, len(d.order))
	for _, name := range d.order {
		cmds = append(cmds, d.commands[name])
	}
	return cmds
}

// HelpText lists every registered command, one per line.
func (d *Dispatcher) HelpText() string {
	lines := []string{"Список доступных команд:", ""}
	for _, cmd := range d.Commands() {
		lines = append(lines, cmd.HelpLine())
	}
	return strings.Join(lines, "\n")
}

// Parse splits chat text into a command name, the bot it is addressed to
// and its arguments. ok is false unless the text starts with "/". Telegram
// appends "@botname" to commands picked in group chats; that suffix is
// returned as addressee.
func Parse(text string) (name, addressee string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", "", nil, false
	}

	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name, addressee = name[:at], name[at+1:]
	}
	if name == "" {
		return "", "", nil, false
	}
	return name, addressee, fields[1:], true
}

// Dispatch runs the command matching c.Text(), or the fallback. Errors and
// panics from actions are logged here and never propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Context) {
	action, name, args := d.resolve(c.Text())
	if action == nil {
		return
	}

	logger := slog.With("command", name, "user_id", c.UserID(), "chat_id", c.ChatID())
	if err := run(ctx, action, c, args); err != nil {
		logger.Error("Command failed", "error", err)
		return
	}
	logger.Debug("Command handled")
}

func (d *Dispatcher) resolve(text string) (domain.Action, string, []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	name, addressee, args, ok := Parse(text)
	if ok && addressee != "" && d.username != "" && !strings.EqualFold(addressee, d.username) {
		return nil, "", nil
	}
	if ok {
		if cmd, found := d.commands[name]; found && cmd.Accepts(len(args)) {
			return cmd.Action, "/" + name, args
		}
	}
	return d.fallback, "fallback", nil
}

func run(ctx context.Context, action domain.Action, c domain.Context, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx, c, args)
}
