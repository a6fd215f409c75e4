package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/pharos-bot/internal/pipeline"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format       ExportFormat
	OutputDir    string
	StepFilter   string // only rows for this step
	OnlyFailures bool
}

// Row is one pipeline step of one account.
type Row struct {
	SweepID   string    `json:"sweep_id" yaml:"sweep_id"`
	Account   int       `json:"account" yaml:"account"`
	Address   string    `json:"address" yaml:"address"`
	State     string    `json:"state" yaml:"state"`
	Step      string    `json:"step" yaml:"step"`
	Iteration int       `json:"iteration" yaml:"iteration"`
	Status    string    `json:"status" yaml:"status"`
	TxHash    string    `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
	failed    bool
}

// Report is everything written for one sweep.
type Report struct {
	SweepID    string    `json:"sweep_id" yaml:"sweep_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Summary    Summary   `json:"summary" yaml:"summary"`
	Rows       []Row     `json:"rows" yaml:"rows"`
}

// Summary contains per-sweep totals.
type Summary struct {
	Accounts     int            `json:"accounts" yaml:"accounts"`
	Done         int            `json:"done" yaml:"done"`
	Aborted      int            `json:"aborted" yaml:"aborted"`
	Steps        int            `json:"steps" yaml:"steps"`
	FailedSteps  int            `json:"failed_steps" yaml:"failed_steps"`
	StatusCounts map[string]int `json:"status_counts" yaml:"status_counts"`
}

// NewReport flattens the runs of one sweep.
func NewReport(sweepID string, startedAt, finishedAt time.Time, runs []*pipeline.Run) Report {
	report := Report{
		SweepID:    sweepID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Summary:    Summary{StatusCounts: make(map[string]int)},
	}

	for _, run := range runs {
		if run == nil {
			continue
		}
		report.Summary.Accounts++
		switch run.State {
		case pipeline.StateDone:
			report.Summary.Done++
		case pipeline.StateAborted:
			report.Summary.Aborted++
		}

		for _, step := range run.Steps {
			row := Row{
				SweepID:   sweepID,
				Account:   run.Index,
				Address:   run.Address,
				State:     string(run.State),
				Step:      step.Step,
				Iteration: step.Iteration,
				Status:    step.Status,
				TxHash:    step.TxHash,
				Detail:    step.Detail,
				At:        step.At,
				failed:    step.Failed(),
			}
			if step.Err != nil {
				row.Error = step.Err.Error()
			}
			report.Rows = append(report.Rows, row)
			report.Summary.Steps++
			report.Summary.StatusCounts[step.Status]++
			if row.failed {
				report.Summary.FailedSteps++
			}
		}
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		if report.Rows[i].Account != report.Rows[j].Account {
			return report.Rows[i].Account < report.Rows[j].Account
		}
		return report.Rows[i].At.Before(report.Rows[j].At)
	})
	return report
}

// SweepExporter writes sweep reports to disk.
type SweepExporter struct {
	logger *zap.Logger
}

// NewSweepExporter creates a new exporter
func NewSweepExporter(logger *zap.Logger) *SweepExporter {
	return &SweepExporter{logger: logger.Named("export")}
}

// Export writes report as sweep-<time>-<id>.<format> into options.OutputDir
// and returns the file path.
func (se *SweepExporter) Export(report Report, options ExportOptions) (string, error) {
	report.Rows = filterRows(report.Rows, options)

	filename := generateFilename(report, options.Format)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = exportToCSV(report, outputPath)
	case FormatJSON:
		err = exportToJSON(report, outputPath)
	case FormatYAML:
		err = exportToYAML(report, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	se.logger.Info("Sweep report exported",
		zap.String("file", outputPath),
		zap.Int("rows", len(report.Rows)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterRows(rows []Row, options ExportOptions) []Row {
	if options.StepFilter == "" && !options.OnlyFailures {
		return rows
	}
	var filtered []Row
	for _, row := range rows {
		if options.StepFilter != "" && row.Step != options.StepFilter {
			continue
		}
		if options.OnlyFailures && !row.failed {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

func generateFilename(report Report, format ExportFormat) string {
	id := report.SweepID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("sweep-%s-%s.%s", report.StartedAt.Format("20060102_150405"), id, format)
}

// CSVHeaders returns the CSV column names.
func CSVHeaders() []string {
	return []string{"sweep_id", "account", "address", "state", "step", "iteration", "status", "tx_hash", "detail", "error", "at"}
}

func (r Row) toCSV() []string {
	return []string{
		r.SweepID,
		strconv.Itoa(r.Account),
		r.Address,
		r.State,
		r.Step,
		strconv.Itoa(r.Iteration),
		r.Status,
		r.TxHash,
		r.Detail,
		r.Error,
		r.At.Format(time.RFC3339),
	}
}

func exportToCSV(report Report, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range report.Rows {
		if err := writer.Write(row.toCSV()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func exportToJSON(report Report, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func exportToYAML(report Report, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create YAML file: %w", err)
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}
