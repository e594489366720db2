// Package ingest drives a run from registered raw file to committed events:
// mapping resolution, row normalization, dedup, entity extraction, all
// inside one transaction per run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/casetrail/casetrail/internal/database"
	"github.com/casetrail/casetrail/internal/fieldmap"
	"github.com/casetrail/casetrail/internal/fingerprint"
	"github.com/casetrail/casetrail/internal/model"
	"github.com/casetrail/casetrail/internal/normalize"
	"github.com/casetrail/casetrail/internal/rowio"
	"github.com/casetrail/casetrail/internal/schema"
)

// Run states, reported in results and logs.
const (
	StateRegistered  = "registered"
	StateReading     = "reading"
	StateNormalizing = "normalizing"
	StateWriting     = "writing"
	StateCommitted   = "committed"
	StateAborted     = "aborted"
)

// maxRecordedErrors caps the error detail kept per lenient run; skipped rows
// past the cap are still counted.
const maxRecordedErrors = 10

// sampleFieldLimit caps how much of a bad row an error sample carries.
const sampleFieldLimit = 5

// Service wires the case store and case filesystem into run operations.
type Service struct {
	Store *database.CaseStore
	FS    CaseFS
	Log   *slog.Logger
}

func NewService(store *database.CaseStore, fs CaseFS, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Store: store, FS: fs, Log: log}
}

// DuplicateFileError reports a raw file whose content hash is already
// registered on the case.
type DuplicateFileError struct {
	RunID     string
	QueryName string
	FileHash  string
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("file already registered as run %s (%q)", e.RunID, e.QueryName)
}

// MappingError aborts ingestion before any row is read: the resolved mapping
// cannot produce valid events.
type MappingError struct {
	Source   string
	Problems []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping for %s rejected: %s", e.Source, strings.Join(e.Problems, "; "))
}

// RowFailureError aborts a strict-mode run on the first bad row.
type RowFailureError struct {
	RunID string
	Line  int
	Cause error
}

func (e *RowFailureError) Error() string {
	return fmt.Sprintf("run %s aborted at row %d: %v", e.RunID, e.Line, e.Cause)
}

func (e *RowFailureError) Unwrap() error { return e.Cause }

// AddRunParams declares a raw file and its provenance.
type AddRunParams struct {
	CaseID       string
	SourceSystem string
	QueryName    string
	QueryText    string
	ExecutedAt   string
	TimeStart    string
	TimeEnd      string
	FilePath     string

	// AllowDuplicate registers the file even when its content hash matches
	// an existing run.
	AllowDuplicate bool
}

// Options tunes one ingestion pass.
type Options struct {
	// Strict aborts the whole run on the first bad row. Lenient (the
	// default) skips bad rows and records them.
	Strict bool
	// EntityFields lists the unified columns mined for entities. Empty
	// means the default set.
	EntityFields []string
	// Overrides force source→unified assignments on top of the resolved
	// mapping.
	Overrides map[string]string
}

// Result summarizes one ingested run.
type Result struct {
	RunID        string `json:"run_id"`
	SourceSystem string `json:"source_system"`
	MapperType   string `json:"mapper_type"`

	EventsIngested int              `json:"events_ingested"`
	EventsSkipped  int              `json:"events_skipped"`
	ErrorCount     int              `json:"error_count"`
	Errors         []model.RowError `json:"errors,omitempty"`

	FieldsMapped   int               `json:"fields_mapped"`
	FieldsUnmapped []string          `json:"fields_unmapped,omitempty"`
	Suggestions    map[string]string `json:"suggestions,omitempty"`
	State          string            `json:"state"`
}

// AddRun hashes and copies a raw file into the case workspace and registers
// it as a pending run. The same content can only be registered once per case
// unless AllowDuplicate is set.
func (s *Service) AddRun(ctx context.Context, p AddRunParams) (*model.QueryRun, error) {
	c, err := s.Store.GetCase(ctx, p.CaseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("unknown case %q", p.CaseID)
	}
	if p.SourceSystem == "" {
		return nil, errors.New("source system is required")
	}

	hash, err := fingerprint.File(p.FilePath)
	if err != nil {
		return nil, err
	}
	if !p.AllowDuplicate {
		prior, err := s.Store.FindRunByFileHash(ctx, p.CaseID, hash)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return nil, &DuplicateFileError{RunID: prior.RunID, QueryName: prior.QueryName, FileHash: hash}
		}
	}

	run := &model.QueryRun{
		RunID:        uuid.NewString(),
		CaseID:       p.CaseID,
		SourceSystem: strings.ToLower(p.SourceSystem),
		QueryName:    p.QueryName,
		QueryText:    p.QueryText,
		ExecutedAt:   normalize.NowUTC(),
		FileHash:     hash,
	}
	for _, pair := range []struct {
		in  string
		dst *string
	}{
		{p.ExecutedAt, &run.ExecutedAt},
		{p.TimeStart, &run.TimeStart},
		{p.TimeEnd, &run.TimeEnd},
	} {
		if pair.in == "" {
			continue
		}
		t, err := normalize.ParseTimestamp(pair.in)
		if err != nil {
			return nil, fmt.Errorf("bad run timestamp %q: %w", pair.in, err)
		}
		*pair.dst = normalize.FormatUTC(t)
	}

	run.RawPath, err = s.FS.StoreRaw(p.CaseID, run.SourceSystem, run.RunID, p.FilePath)
	if err != nil {
		return nil, err
	}
	if err := s.Store.InsertRun(ctx, run); err != nil {
		return nil, err
	}
	s.Log.Info("run registered",
		"case", p.CaseID, "run", run.RunID,
		"source", run.SourceSystem, "query", run.QueryName, "state", StateRegistered)
	return run, nil
}

// IngestRun normalizes and commits one pending run. The run's events either
// all commit or none do; a returned error means the store is unchanged. When
// a run fails after its summary exists, the summary is returned alongside the
// error with State set to aborted.
func (s *Service) IngestRun(ctx context.Context, caseID, runID string, opts Options) (*Result, error) {
	run, err := s.Store.GetRun(ctx, caseID, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("unknown run %q", runID)
	}
	if run.IngestedAt != "" {
		return nil, fmt.Errorf("run %s already ingested at %s", runID, run.IngestedAt)
	}

	res := &Result{RunID: runID, SourceSystem: run.SourceSystem, State: StateReading}
	s.Log.Info("ingest started", "case", caseID, "run", runID, "source", run.SourceSystem,
		"strict", opts.Strict, "state", res.State)

	reader, err := rowio.Open(run.RawPath)
	if err != nil {
		res.State = StateAborted
		return res, err
	}
	defer reader.Close()

	// Resolve the mapping from the header (CSV) or the first decodable
	// row's keys (NDJSON). Rows consumed while peeking are replayed.
	var pending []*rowio.Row
	var observed []string
	if cr, ok := reader.(*rowio.CSVReader); ok {
		observed = cr.Header()
	} else {
		for {
			row, err := reader.Next()
			if err == io.EOF {
				break
			}
			var perr *rowio.ParseError
			if errors.As(err, &perr) {
				if opts.Strict {
					res.State = StateAborted
					return res, &RowFailureError{RunID: runID, Line: perr.Line, Cause: perr}
				}
				res.recordError(perr.Line, perr, nil)
				continue
			}
			if err != nil {
				res.State = StateAborted
				return res, err
			}
			pending = append(pending, row)
			observed = sortedKeys(row.Fields)
			break
		}
	}

	mapping, mapperType, err := fieldmap.ForSource(run.SourceSystem, s.FS.CaseDir(caseID), observed)
	if err != nil {
		res.State = StateAborted
		return res, err
	}
	for src, unified := range opts.Overrides {
		mapping.SetOverride(src, unified)
	}
	res.MapperType = mapperType
	res.FieldsUnmapped = unmappedSources(mapping)
	res.FieldsMapped = len(mapping.Sources()) - len(res.FieldsUnmapped)
	res.Suggestions = mappedPairs(mapping)

	if len(observed) > 0 {
		if problems := mapping.Validate(); len(problems) > 0 {
			res.State = StateAborted
			return res, &MappingError{Source: run.SourceSystem, Problems: problems}
		}
	}

	entityFields := opts.EntityFields
	if len(entityFields) == 0 {
		entityFields = schema.DefaultEntityFields
	}

	tx, err := s.Store.BeginIngest(ctx, caseID)
	if err != nil {
		res.State = StateAborted
		return res, err
	}
	defer tx.Rollback()
	res.State = StateNormalizing

	next := func() (*rowio.Row, error) {
		if len(pending) > 0 {
			row := pending[0]
			pending = pending[1:]
			return row, nil
		}
		return reader.Next()
	}

	for {
		if err := ctx.Err(); err != nil {
			res.State = StateAborted
			return res, err
		}
		row, err := next()
		if err == io.EOF {
			break
		}
		var perr *rowio.ParseError
		if errors.As(err, &perr) {
			if opts.Strict {
				res.State = StateAborted
				return res, &RowFailureError{RunID: runID, Line: perr.Line, Cause: perr}
			}
			res.recordError(perr.Line, perr, nil)
			continue
		}
		if err != nil {
			res.State = StateAborted
			return res, err
		}

		ev, extras, err := normalize.Normalize(row, mapping)
		if err != nil {
			if opts.Strict {
				res.State = StateAborted
				return res, &RowFailureError{RunID: runID, Line: row.Line, Cause: err}
			}
			res.recordError(row.Line, err, row.Fields)
			continue
		}

		ev.CaseID = caseID
		ev.RunID = runID
		if ev.SourceSystem == "" {
			ev.SourceSystem = run.SourceSystem
		}
		ev.RawRef = fmt.Sprintf("%s#L%d", run.RawPath, row.Line)
		ev.RawJSON = row.Raw
		ev.ExtrasJSON = normalize.ExtrasJSON(extras)
		ev.Fingerprint = fingerprint.Event(ev)

		res.State = StateWriting
		pk, dup, err := tx.InsertOrGetEvent(ctx, ev)
		if err != nil {
			res.State = StateAborted
			return res, err
		}
		if dup {
			res.EventsSkipped++
			continue
		}
		for _, f := range extras {
			if err := tx.InsertEventField(ctx, pk, f.Name, f.Value); err != nil {
				res.State = StateAborted
				return res, err
			}
		}
		if err := s.linkEntities(ctx, tx, caseID, pk, ev, entityFields); err != nil {
			res.State = StateAborted
			return res, err
		}
		res.EventsIngested++
	}

	if err := tx.MarkRunIngested(ctx, runID, int64(res.EventsIngested), normalize.NowUTC()); err != nil {
		res.State = StateAborted
		return res, err
	}
	if err := tx.Commit(); err != nil {
		res.State = StateAborted
		return res, err
	}
	res.State = StateCommitted
	s.Log.Info("ingest committed",
		"case", caseID, "run", runID, "mapper", mapperType,
		"ingested", res.EventsIngested, "skipped", res.EventsSkipped,
		"errors", res.ErrorCount, "state", res.State)
	return res, nil
}

// IngestAll ingests every pending run on the case in executed_at order,
// stopping at the first failing run.
func (s *Service) IngestAll(ctx context.Context, caseID string, opts Options) ([]*Result, error) {
	runs, err := s.Store.PendingRuns(ctx, caseID)
	if err != nil {
		return nil, err
	}
	results := make([]*Result, 0, len(runs))
	for _, run := range runs {
		res, err := s.IngestRun(ctx, caseID, run.RunID, opts)
		if err != nil {
			return results, fmt.Errorf("run %s (%s): %w", run.RunID, run.QueryName, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) linkEntities(ctx context.Context, tx *database.IngestTx, caseID string, eventPK int64, ev *model.Event, columns []string) error {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		etype := schema.EntityTypeForColumn(col)
		if etype == "" {
			continue
		}
		value := ev.StringField(col)
		if value == "" {
			continue
		}
		key := etype + "\x00" + value
		if seen[key] {
			continue
		}
		seen[key] = true
		entityID, err := tx.UpsertEntity(ctx, caseID, etype, value, ev.EventTS)
		if err != nil {
			return err
		}
		if err := tx.LinkEntity(ctx, eventPK, entityID); err != nil {
			return err
		}
	}
	return nil
}

// recordError counts a skipped row, keeping detail for the first
// maxRecordedErrors of them.
func (r *Result) recordError(line int, err error, fields map[string]string) {
	r.ErrorCount++
	if len(r.Errors) >= maxRecordedErrors {
		return
	}
	r.Errors = append(r.Errors, model.RowError{
		Line:   line,
		Err:    err.Error(),
		Sample: sampleFields(fields),
	})
}

// sampleFields keeps the first sampleFieldLimit fields in name order.
func sampleFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	names := sortedKeys(fields)
	if len(names) > sampleFieldLimit {
		names = names[:sampleFieldLimit]
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = fields[n]
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unmappedSources(m *fieldmap.Mapping) []string {
	var out []string
	for _, src := range m.Sources() {
		if unified, _ := m.Unified(src); unified == "" {
			out = append(out, src)
		}
	}
	return out
}

func mappedPairs(m *fieldmap.Mapping) map[string]string {
	out := make(map[string]string)
	for _, src := range m.Sources() {
		if unified, _ := m.Unified(src); unified != "" {
			out[src] = unified
		}
	}
	return out
}
