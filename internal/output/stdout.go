package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jakopako/flowcheck/internal/report"
)

// StdoutWriter represents a writer that writes to stdout
type StdoutWriter struct {
	*WriterConfig
	out    io.Writer
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		WriterConfig: wc,
		out:          os.Stdout,
		logger:       slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) Write(rep *report.TestReport) error {
	w.logger.Info(fmt.Sprintf("printing report of test run %s", rep.TestRunID))
	rep.WriteTable(w.out)
	fmt.Fprintln(w.out)
	for _, l := range rep.SummaryLines() {
		fmt.Fprintln(w.out, l)
	}
	for _, s := range rep.Screens {
		lines := s.ScreenLines()
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(w.out, "\n%s (%s):\n", s.Name, s.Status)
		for _, l := range lines {
			fmt.Fprintf(w.out, "  %s\n", l)
		}
	}
	if !w.JSON {
		return nil
	}
	b, err := encodeJSON(rep)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(b))
	return err
}
