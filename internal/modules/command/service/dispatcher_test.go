package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/reshetovitsme/notify-relay/internal/modules/command/domain"
)

type fakeContext struct {
	text    string
	replies []string
}

func (f *fakeContext) UserID() int64 { return 1 }
func (f *fakeContext) ChatID() int64 { return 1 }
func (f *fakeContext) Text() string  { return f.text }

func (f *fakeContext) Reply(ctx context.Context, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

func recorder(calls *[]string, label string) domain.Action {
	return func(ctx context.Context, c domain.Context, args []string) error {
		*calls = append(*calls, label)
		*calls = append(*calls, args...)
		return nil
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		text      string
		name      string
		addressee string
		args      []string
		ok        bool
	}{
		{text: "/help", name: "help", ok: true},
		{text: "  /sub   ABC  ", name: "sub", args: []string{"ABC"}, ok: true},
		{text: "/sub@relay_bot abc def", name: "sub", addressee: "relay_bot", args: []string{"abc", "def"}, ok: true},
		{text: "help", ok: false},
		{text: "/", ok: false},
		{text: "", ok: false},
	}

	for _, tt := range tests {
		name, addressee, args, ok := Parse(tt.text)
		if ok != tt.ok || name != tt.name || addressee != tt.addressee || !slices.Equal(args, tt.args) {
			t.Errorf("Parse(%q) = (%q, %q, %v, %v), want (%q, %q, %v, %v)",
				tt.text, name, addressee, args, ok, tt.name, tt.addressee, tt.args, tt.ok)
		}
	}
}

func TestDispatchArgumentGate(t *testing.T) {
	var calls []string
	d := NewDispatcher()
	d.Register(domain.MustCommand(domain.Options{Name: "sub", MinArgs: 1, MaxArgs: 1, Action: recorder(&calls, "sub")}))
	d.SetFallback(recorder(&calls, "fallback"))

	tests := []struct {
		text string
		want []string
	}{
		{text: "/sub", want: []string{"fallback"}},
		{text: "/sub a b", want: []string{"fallback"}},
		{text: "/sub a", want: []string{"sub", "a"}},
		{text: "/unknown", want: []string{"fallback"}},
		{text: "hello", want: []string{"fallback"}},
		{text: "/subscribe a", want: []string{"fallback"}},
	}

	for _, tt := range tests {
		calls = nil
		d.Dispatch(context.Background(), &fakeContext{text: tt.text})
		if !slices.Equal(calls, tt.want) {
			t.Errorf("Dispatch(%q) calls = %v, want %v", tt.text, calls, tt.want)
		}
	}
}

func TestDispatchAddressee(t *testing.T) {
	var calls []string
	d := NewDispatcher()
	d.Register(domain.MustCommand(domain.Options{Name: "help", Action: recorder(&calls, "help")}))
	d.SetFallback(recorder(&calls, "fallback"))

	d.Dispatch(context.Background(), &fakeContext{text: "/help@OtherBot"})
	if !slices.Equal(calls, []string{"help"}) {
		t.Fatalf("before SetUsername calls = %v, want [help]", calls)
	}

	d.SetUsername("@relay_bot")

	tests := []struct {
		text string
		want []string
	}{
		{text: "/help@relay_bot", want: []string{"help"}},
		{text: "/help@Relay_Bot", want: []string{"help"}},
		{text: "/help", want: []string{"help"}},
		{text: "/help@OtherBot", want: nil},
		{text: "/unknown@OtherBot", want: nil},
		{text: "/unknown@relay_bot", want: []string{"fallback"}},
	}

	for _, tt := range tests {
		calls = nil
		d.Dispatch(context.Background(), &fakeContext{text: tt.text})
		if !slices.Equal(calls, tt.want) {
			t.Errorf("Dispatch(%q) calls = %v, want %v", tt.text, calls, tt.want)
		}
	}
}

func TestRegisterLastWinsAndKeepsOrder(t *testing.T) {
	var calls []string
	d := NewDispatcher()
	d.Register(
		domain.MustCommand(domain.Options{Name: "help", Action: recorder(&calls, "help")}),
		domain.MustCommand(domain.Options{Name: "create", Description: "first", Action: recorder(&calls, "create-1")}),
		domain.MustCommand(domain.Options{Name: "delete", Action: recorder(&calls, "delete")}),
	)
	d.Register(domain.MustCommand(domain.Options{Name: "create", Description: "second", Action: recorder(&calls, "create-2")}))

	names := make([]string, 0)
	for _, cmd := range d.Commands() {
		names = append(names, cmd.Name)
	}
	if !slices.Equal(names, []string{"help", "create", "delete"}) {
		t.Fatalf("Commands order = %v", names)
	}

	d.Dispatch(context.Background(), &fakeContext{text: "/create"})
	if !slices.Equal(calls, []string{"create-2"}) {
		t.Fatalf("calls = %v, want the last registered action", calls)
	}
	if cmd, _ := d.Get("create"); cmd.Description != "second" {
		t.Fatalf("Get(create).Description = %q", cmd.Description)
	}
}

func TestHelpText(t *testing.T) {
	d := NewDispatcher()
	d.Register(
		domain.MustCommand(domain.Options{Name: "help", Description: "вывести справку", Action: recorder(new([]string), "")}),
		domain.MustCommand(domain.Options{Name: "delete", Hint: "delete <ID канала>", MinArgs: 1, MaxArgs: 1, Action: recorder(new([]string), "")}),
	)

	want := "Список доступных команд:\n\n/help - вывести справку\n/delete <ID канала>"
	if got := d.HelpText(); got != want {
		t.Fatalf("HelpText() = %q, want %q", got, want)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	d := NewDispatcher()
	d.Register(
		domain.MustCommand(domain.Options{Name: "boom", Action: func(context.Context, domain.Context, []string) error {
			panic("kaboom")
		}}),
		domain.MustCommand(domain.Options{Name: "fail", Action: func(context.Context, domain.Context, []string) error {
			return errors.New("action failed")
		}}),
	)

	// Neither call may panic out of Dispatch.
	d.Dispatch(context.Background(), &fakeContext{text: "/boom"})
	d.Dispatch(context.Background(), &fakeContext{text: "/fail"})
	// No fallback set: unmatched text is dropped.
	d.Dispatch(context.Background(), &fakeContext{text: "/missing"})
}
