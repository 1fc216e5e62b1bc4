// Package cli is a small pflag based command tree: each command owns a flag
// set and either runs or dispatches to a subcommand by name.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

type Command struct {
	Name    string
	Summary string
	// Usage overrides the synthesized usage line.
	Usage string

	// Flags returns the flag set for this command. It is called once per
	// parse, so flag variables are bound in the closure.
	Flags func() *pflag.FlagSet

	Subcommands []*Command
	Run         func(ctx context.Context, args []string) error

	parent *Command
}

// UsageError marks invalid input. It is printed with a pointer to --help.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

func IsUsage(err error) bool {
	var usage *UsageError
	return errors.As(err, &usage)
}

// Execute parses args against the tree rooted at c.
func (c *Command) Execute(ctx context.Context, args []string) error {
	return c.execute(ctx, args, os.Stderr)
}

func (c *Command) execute(ctx context.Context, args []string, help io.Writer) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(help)
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		for _, sub := range c.Subcommands {
			if sub.Name == args[0] {
				sub.parent = c
				return sub.execute(ctx, args[1:], help)
			}
		}
		if c.Run == nil {
			return Usagef("unknown command %q\n\nRun '%s --help' for usage.", args[0], c.FullName())
		}
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(help)
		return Usagef("%s: subcommand required", c.FullName())
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		flagSet.SetOutput(io.Discard)
		if err := flagSet.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				c.PrintHelp(help)
				return nil
			}
			return Usagef("%s\n\nRun '%s --help' for usage.", err, c.FullName())
		}
		args = flagSet.Args()
	}

	if c.Run == nil {
		c.PrintHelp(help)
		return Usagef("no action defined for %q", c.FullName())
	}
	return c.Run(ctx, args)
}

func (c *Command) FullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.FullName() + " " + c.Name
}

func (c *Command) PrintHelp(w io.Writer) {
	name := c.FullName()
	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}
	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", name)
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", name)
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		var flagHelp strings.Builder
		flagSet := c.Flags()
		flagSet.SetOutput(&flagHelp)
		flagSet.PrintDefaults()
		if flagHelp.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", flagHelp.String())
		}
	}
	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

// ArgID parses the positional argument at index as a positive id.
func ArgID(args []string, index int, name string) (int64, error) {
	if index >= len(args) {
		return 0, Usagef("missing <%s>", name)
	}
	id, err := strconv.ParseInt(args[index], 10, 64)
	if err != nil || id <= 0 {
		return 0, Usagef("invalid %s %q", name, args[index])
	}
	return id, nil
}
