// Package output provides the interface and configuration and implementation for writers
package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jakopako/flowcheck/internal/report"
)

// Writer defines the interface for all writers that are responsible
// for writing a test report to a specific output.
type Writer interface {
	Write(rep *report.TestReport) error
}

// WriterConfig defines the necessary paramters to make a new writer
// which is responsible for writing the report to a specific output
// eg. stdout.
type WriterConfig struct {
	Type     WriterType `yaml:"type" env:"WRITER_TYPE" env-default:"stdout"`
	Uri      string     `yaml:"uri" env:"WRITER_URI"`
	User     string     `yaml:"user" env:"WRITER_USER"`         // we want to be able to pass credentials via env vars
	Password string     `yaml:"password" env:"WRITER_PASSWORD"` // we want to be able to pass credentials via env vars
	FileDir  string     `yaml:"filedir" env:"WRITER_FILEDIR" env-default:"flowcheck-reports"`
	// Locale is used for dates in the html report, eg. de_DE.
	Locale string `yaml:"locale" env:"WRITER_LOCALE" env-default:"en_US"`
	// JSON makes the stdout writer print the full report after the table.
	JSON bool `yaml:"json" env:"WRITER_JSON"`
}

// WriterType encapsulates the type of a writer
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}

// encodeJSON indents v without replacing html characters by their unicode
// escapes, json.MarshalIndent would do that.
func encodeJSON(v any) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("error while encoding report: %w", err)
	}
	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("error while indenting json: %w", err)
	}
	return indentBuffer.Bytes(), nil
}
