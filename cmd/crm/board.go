package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hopewell/crm/internal/kanban"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newBoardCmd() *cobra.Command {
	var (
		configPath string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "board <pipeline>",
		Short: "Print a pipeline as columns of cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.svc.Board(context.Background(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderBoard(out, p, colorEnabled(out, noColor), termWidth(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured stage headers")
	return cmd
}

// renderBoard prints each bucket as a header followed by its cards. The
// uncategorised bucket is only shown when it holds cards.
func renderBoard(w io.Writer, p kanban.Partition, color bool, width int) {
	fmt.Fprintf(w, "%s (%d cards)\n", p.Pipeline, p.Count())
	for _, b := range p.Buckets {
		if b.Stage.Key == kanban.Uncategorised && len(b.Cards) == 0 {
			continue
		}
		header := fmt.Sprintf("== %s [%d] ==", b.Stage.Label, len(b.Cards))
		if color {
			header = paint(header, b.Stage.Color)
		}
		fmt.Fprintf(w, "\n%s\n", header)
		for _, c := range b.Cards {
			line := fmt.Sprintf("  %-8s %s  %s", orDash(c.Rank), shortID(c.ID), c.Title)
			fmt.Fprintln(w, truncate(line, width))
		}
	}
}

// colorEnabled reports whether w is a terminal that should get ANSI colour.
func colorEnabled(w io.Writer, disabled bool) bool {
	if disabled || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// termWidth returns the terminal width of w, or 0 when unknown.
func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// paint wraps s in a 24-bit foreground colour taken from a #rrggbb value.
// Other colour formats leave s unchanged.
func paint(s, hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return s
	}
	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return s
	}
	return fmt.Sprintf("\x1b[1;38;2;%d;%d;%dm%s\x1b[0m", rgb>>16, (rgb>>8)&0xff, rgb&0xff, s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate cuts s to width runes with a trailing ellipsis. width <= 0
// means unlimited.
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
