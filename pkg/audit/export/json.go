package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/arbiter/pkg/audit"
)

// JSONExporter exports decision logs as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Format implements audit.Exporter.
func (e *JSONExporter) Format() string { return "json" }

// Export writes logs as a JSON array. An empty slice produces "[]".
func (e *JSONExporter) Export(ctx context.Context, logs []*audit.DecisionLog, w io.Writer) error {
	if logs == nil {
		logs = []*audit.DecisionLog{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(logs, "", "  ")
	} else {
		data, err = json.Marshal(logs)
	}
	if err != nil {
		return audit.NewExportError("json", len(logs), err)
	}

	if _, err := w.Write(data); err != nil {
		return audit.NewExportError("json", len(logs), err)
	}
	return nil
}

// ExportStream writes logs from a channel as a JSON array without holding
// them all in memory.
func (e *JSONExporter) ExportStream(ctx context.Context, logsCh <-chan *audit.DecisionLog, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return audit.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case log, ok := <-logsCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return audit.NewExportError("json", count, err)
				}
				return nil
			}

			if count > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := w.Write([]byte(sep)); err != nil {
					return audit.NewExportError("json", count, err)
				}
			}

			data, err := e.serialize(log)
			if err != nil {
				return audit.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return audit.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) serialize(log *audit.DecisionLog) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(log, "  ", "  ")
	}
	return json.Marshal(log)
}
