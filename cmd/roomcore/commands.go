package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/room"
	"github.com/officeverse/roomcore/internal/scripting"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdMove
	cmdTrigger
	cmdList
	cmdQuit
)

type command struct {
	kind commandKind
	pos  geom.Point
	id   string // empty: trigger the closest
}

// parseCommand reads one console line: "x,y", "e", "e <id>", "l" or "q".
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "q", "quit":
		return command{kind: cmdQuit}, nil
	case "l", "list":
		return command{kind: cmdList}, nil
	case "e":
		if len(fields) > 2 {
			return command{}, fmt.Errorf("usage: e [id]")
		}
		c := command{kind: cmdTrigger}
		if len(fields) == 2 {
			c.id = fields[1]
		}
		return c, nil
	}

	xs, ys, ok := strings.Cut(strings.ReplaceAll(line, " ", ""), ",")
	if !ok {
		return command{}, fmt.Errorf("unknown command %q", line)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return command{}, fmt.Errorf("bad x in %q", line)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return command{}, fmt.Errorf("bad y in %q", line)
	}
	return command{kind: cmdMove, pos: geom.Point{X: x, Y: y}}, nil
}

func handleCommand(sess *room.Session, cmd command, out io.Writer) {
	switch cmd.kind {
	case cmdMove:
		if !sess.IsValidPosition(cmd.pos) {
			fmt.Fprintf(out, "  blocked: %s\n", cmd.pos)
			return
		}
		sess.Move(cmd.pos)
	case cmdTrigger:
		if cmd.id == "" {
			o, act, ok := sess.TriggerClosest()
			if !ok {
				fmt.Fprintln(out, "  nothing to interact with")
				return
			}
			fmt.Fprintln(out, formatAction(o.ID, act))
			return
		}
		act, ok := sess.Trigger(cmd.id)
		if !ok {
			fmt.Fprintf(out, "  cannot interact with %s\n", cmd.id)
			return
		}
		fmt.Fprintln(out, formatAction(cmd.id, act))
	case cmdList:
		available := sess.Available()
		if len(available) == 0 {
			fmt.Fprintln(out, "  nothing in range")
			return
		}
		for _, o := range available {
			fmt.Fprintf(out, "  %s (%s)\n", o.ID, o.Type)
		}
	}
}

// formatAction renders a trigger result as "  id -> kind [target] ["message"]".
func formatAction(id string, act scripting.Action) string {
	parts := []string{act.Kind}
	if act.Target != "" {
		parts = append(parts, act.Target)
	}
	if act.Message != "" {
		parts = append(parts, strconv.Quote(act.Message))
	}
	return "  " + id + " -> " + strings.Join(parts, " ")
}
