package store

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/loreweave/internal/ir"
)

//go:embed export.schema.json
var exportSchemaJSON string

// ExportFormatVersion is written into every export document.
const ExportFormatVersion = 1

// Export is the portable form of a stored run.
type Export struct {
	FormatVersion int                 `json:"format_version"`
	EngineVersion string              `json:"engine_version"`
	Run           *Run                `json:"run"`
	Ticks         []TickRow           `json:"ticks"`
	Events        []ir.NarrativeEvent `json:"events"`
	Violations    []ir.Violation      `json:"violations"`
}

var (
	exportSchemaOnce sync.Once
	exportSchema     *jsonschema.Schema
	exportSchemaErr  error
)

func compiledExportSchema() (*jsonschema.Schema, error) {
	exportSchemaOnce.Do(func() {
		exportSchema, exportSchemaErr = jsonschema.CompileString("export.schema.json", exportSchemaJSON)
	})
	return exportSchema, exportSchemaErr
}

// ExportRun collects everything stored for runID.
func (s *Store) ExportRun(ctx context.Context, runID string) (*Export, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	ticks, err := s.ReadTicks(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := s.ReadEvents(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	violations, err := s.ReadViolations(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Export{
		FormatVersion: ExportFormatVersion,
		EngineVersion: ir.EngineVersion,
		Run:           run,
		Ticks:         ticks,
		Events:        events,
		Violations:    violations,
	}, nil
}

// Export renders runID as an indented JSON document and validates it
// against the embedded export schema.
func (s *Store) Export(ctx context.Context, runID string) ([]byte, error) {
	doc, err := s.ExportRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal: %w", err)
	}
	if err := ValidateExport(data); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return data, nil
}

// ValidateExport checks an export document against the export schema.
func ValidateExport(data []byte) error {
	schema, err := compiledExportSchema()
	if err != nil {
		return fmt.Errorf("compile export schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid export: %w", err)
	}
	return nil
}
