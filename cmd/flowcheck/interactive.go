package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jakopako/flowcheck/internal/capture"
	"github.com/jakopako/flowcheck/internal/flow"
)

const captureHelp = `Navigate the browser to the next screen, then enter
  <name> [type=page|modal|form|list] [parent=<screen id>] [id=<screen id>]
to capture it. An empty name uses the page path. Enter 'stop' to finish.
`

// parseScreenLine turns an input line into a screen request. ok is false
// if the line asks to stop.
func parseScreenLine(line string) (req capture.ScreenRequest, ok bool, err error) {
	line = strings.TrimSpace(line)
	switch line {
	case "stop", "q", "quit", "exit":
		return req, false, nil
	}
	name := []string{}
	for _, f := range strings.Fields(line) {
		k, v, found := strings.Cut(f, "=")
		if !found {
			name = append(name, f)
			continue
		}
		switch k {
		case "type":
			req.Type = flow.ScreenType(v)
			if !flow.ValidScreenType(req.Type) || req.Type == flow.ScreenTypeStart {
				return req, true, fmt.Errorf("invalid screen type %q", v)
			}
		case "parent":
			req.ParentID = v
		case "id":
			req.ID = v
		default:
			return req, true, fmt.Errorf("unknown option %q", k)
		}
	}
	req.Name = strings.Join(name, " ")
	return req, true, nil
}

// captureInteractively reads screen requests from in until the operator
// stops, in is exhausted or ctx is done.
func captureInteractively(ctx context.Context, s *capture.Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprint(out, captureHelp)
	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, open := <-lines:
			if !open {
				return nil
			}
			line = l
		}
		req, ok, err := parseScreenLine(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if !ok {
			return nil
		}
		node, err := s.CaptureScreen(ctx, req)
		if err != nil {
			slog.Error(fmt.Sprintf("failed to capture screen: %v", err))
			continue
		}
		fmt.Fprintf(out, "captured %s (%s) at %s\n", node.ID, node.URLPath, node.NestedPath)
	}
}
