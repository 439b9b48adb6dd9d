package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jakopako/flowcheck/internal/report"
)

// APIWriter represents a writer that posts the report to an api.
type APIWriter struct {
	*WriterConfig
	client *http.Client
	logger *slog.Logger
}

// NewAPIWriter returns a new APIWriter
func NewAPIWriter(wc *WriterConfig) (*APIWriter, error) {
	if wc.Uri == "" {
		return nil, errors.New("uri needs to be specified for the APIWriter")
	}
	return &APIWriter{
		WriterConfig: wc,
		client: &http.Client{
			Timeout: time.Second * 60,
		},
		logger: slog.With(slog.String("writer", string(API_WRITER_TYPE))),
	}, nil
}

func (w *APIWriter) Write(rep *report.TestReport) error {
	reportJSON, err := encodeJSON(rep)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", w.Uri, bytes.NewBuffer(reportJSON))
	if err != nil {
		return err
	}
	req.Header = map[string][]string{
		"Content-Type": {"application/json"},
	}
	if w.User != "" {
		req.SetBasicAuth(w.User, w.Password)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug(fmt.Sprintf("post request body %s", reportJSON))
		return fmt.Errorf("error while sending post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error while reading post request response: %w", err)
		}
		return fmt.Errorf("error while posting report. Status Code: %d Response: %s", resp.StatusCode, body)
	}
	w.logger.Info(fmt.Sprintf("posted report of test run %s to %s", rep.TestRunID, w.Uri))
	return nil
}
