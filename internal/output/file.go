package output

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goodsign/monday"
	"github.com/jakopako/flowcheck/internal/report"
)

const (
	reportJSONFilename = "report.json"
	reportHTMLFilename = "report.html"
)

// FileWriter represents a writer that writes the report as json and html
// to a directory
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.FileDir == "" {
		return nil, errors.New("filedir needs to be specified for the FileWriter")
	}

	if err := os.MkdirAll(wc.FileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.FileDir, err)
	}

	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) Write(rep *report.TestReport) error {
	b, err := encodeJSON(rep)
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(w.FileDir, reportJSONFilename)
	if err := os.WriteFile(jsonPath, b, 0644); err != nil {
		return fmt.Errorf("error while writing report json to file: %w", err)
	}

	var html bytes.Buffer
	if err := rep.WriteHTML(&html, monday.Locale(w.Locale)); err != nil {
		return err
	}
	htmlPath := filepath.Join(w.FileDir, reportHTMLFilename)
	if err := os.WriteFile(htmlPath, html.Bytes(), 0644); err != nil {
		return fmt.Errorf("error while writing report html to file: %w", err)
	}
	w.logger.Info(fmt.Sprintf("wrote report to %s and %s", jsonPath, htmlPath))
	return nil
}
