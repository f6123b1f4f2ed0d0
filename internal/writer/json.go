package writer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/analysis"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// Report is the full JSON document for one run.
type Report struct {
	Summary *analysis.Summary `json:"summary"`
	Result  *models.Result    `json:"result"`
}

// JSONWriter writes reports as JSON.
type JSONWriter struct {
	Indent bool
}

// Write encodes report to out.
func (w *JSONWriter) Write(out io.Writer, report Report) error {
	enc := json.NewEncoder(out)
	if w.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteToFile writes report to a JSON file at the given path.
func (w *JSONWriter) WriteToFile(path string, report Report) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(f, report) })
}
