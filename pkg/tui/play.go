package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"questgraph/pkg/model"
	"questgraph/pkg/session"
)

// errQuit is returned by parseChoice when the player leaves.
var errQuit = errors.New("quit")

// Play runs an interactive loop over s until the quest ends, the player quits
// or ctx is cancelled. Timed events resolve on their own.
func Play(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap := s.Snapshot()
		if snap.Event == nil {
			fmt.Fprint(out, Outcome(snap))
			return nil
		}
		fmt.Fprint(out, Event(snap.Event))

		if snap.Event.WaitMS > 0 {
			err := s.AutoAdvance(ctx)
			if err != nil && !errors.Is(err, session.ErrStale) {
				return err
			}
			continue
		}

		fmt.Fprint(out, mutedStyle.Render("  choose (number or label, j: journal, q: quit): "))
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil
			}
			return err
		}

		cmd := strings.TrimSpace(line)
		if cmd == "j" {
			fmt.Fprint(out, Journal(s.Journal()))
			continue
		}
		ending, err := parseChoice(snap.Event, cmd)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprint(out, Error(err))
			continue
		}
		if _, err := s.Choose(ctx, ending); err != nil {
			fmt.Fprint(out, Error(err))
		}
	}
}

// parseChoice maps input onto an ending label: a 1-based number or the label itself.
func parseChoice(v *model.EventView, input string) (string, error) {
	switch input {
	case "":
		return "", errors.New("pick one of the decisions")
	case "q", "quit":
		return "", errQuit
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(v.Endings) {
			return "", fmt.Errorf("no decision %d", n)
		}
		return v.Endings[n-1], nil
	}
	return input, nil
}
