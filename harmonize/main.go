// Package harmonize drives a harmonization run: it discovers the entities
// defined by a directory of derivation documents, transforms each one from
// its source tables, and streams it to one output file per entity.
package harmonize

import (
	"bufio"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/aws/s3"
	"github.com/pilosa/hdk/derive"
	"github.com/pilosa/hdk/spec"
	"github.com/pilosa/hdk/stats"
	"github.com/pilosa/hdk/stream"
	"github.com/pilosa/hdk/table"
	"github.com/pilosa/hdk/transform"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Main holds all config for a harmonization run.
type Main struct {
	SourceSchema   string `help:"LinkML schema describing the source tables. Optional."`
	TargetSchema   string `help:"LinkML schema describing the target entities. Optional."`
	DataDir        string `help:"Directory holding the source tables, one file per accession id."`
	SpecDir        string `help:"Directory searched recursively for derivation documents."`
	OutputDir      string `help:"Directory to write one file per entity to. Created if absent."`
	OutputPrefix   string `help:"Prefix joined to entity names with '-' to name output files."`
	OutputPostfix  string `help:"Postfix joined to entity names with '-' to name output files."`
	OutputType     string `help:"Output format: json, jsonl, yaml or tsv."`
	ChunkSize      int    `help:"Number of records serialized at once, and lines rewritten at once when reconciling TSV headers."`
	Strict         bool   `help:"Fail on data/spec mismatches instead of skipping."`
	Concurrency    int    `help:"Number of entities processed in parallel."`
	TableExtension string `help:"File extension of source tables. Tables ending in .csv are comma separated, others tab separated."`
	Separator      string `help:"Column separator of TSV output. \\t means tab."`
	Locator        string `help:"How to find the documents of an entity: index (parse once) or grep (search text per entity)."`
	S3Bucket       string `help:"Read source tables from this S3 bucket instead of data-dir."`
	S3Region       string `help:"AWS region of s3-bucket."`
	S3Prefix       string `help:"Key prefix of the source tables in s3-bucket."`
	Manifest       string `help:"Bolt database recording a summary of every run. Empty disables it."`
	MetricsFile    string `help:"Write prometheus metrics to this file when done. Empty disables it."`
	LogPath        string `help:"Log file to write to. Empty means stderr."`
	Verbose        bool   `help:"Enable verbose logging."`

	// Loader, Mapper, Stats and Logger replace what setup would
	// otherwise build from the configuration when set.
	Loader hdk.TableLoader `flag:"-"`
	Mapper transform.Mapper `flag:"-"`
	Stats  hdk.Statter      `flag:"-"`
	Logger hdk.Logger       `flag:"-"`

	log         hdk.Logger
	logFile     *os.File
	stats       hdk.Statter
	prom        *stats.Prometheus
	format      stream.Format
	sep         string
	catalog     *spec.Catalog
	locator     spec.Locator
	transformer *transform.Transformer
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	return &Main{
		OutputType:     "jsonl",
		ChunkSize:      stream.DefaultChunkSize,
		Concurrency:    1,
		TableExtension: table.DefaultExtension,
		Separator:      `\t`,
		Locator:        "index",
		S3Region:       "us-east-1",
	}
}

// Run processes every discovered entity. The first failing entity cancels
// the others.
func (m *Main) Run() error {
	_, err := m.RunContext(context.Background())
	return err
}

// RunContext is Run with a context, returning the record of the run even
// when it fails after setup.
func (m *Main) RunContext(ctx context.Context) (*Run, error) {
	start := time.Now()
	defer m.closeLog()
	if err := m.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "generating run id")
	}
	run := &Run{
		ID:      id.String(),
		Started: start.UTC(),
		Format:  m.format.String(),
		Strict:  m.Strict,
		SpecDir: m.SpecDir,
		DataDir: m.DataDir,
	}

	err = m.process(ctx, run)
	run.Duration = time.Since(start)
	if err != nil {
		run.Error = err.Error()
	}
	if ferr := m.finish(run); ferr != nil && err == nil {
		err = ferr
	}
	m.log.Printf("time: %.2f seconds", run.Duration.Seconds())
	return run, err
}

func (m *Main) process(ctx context.Context, run *Run) error {
	entities := m.catalog.Entities()
	m.log.Printf("discovered entities: %v", entities)
	if len(entities) == 0 {
		m.log.Printf("warning: no entities discovered in %s - pipeline will produce no outputs", m.SpecDir)
	}
	// a malformed block aborts the run in both modes, even when it
	// defines no entity
	if len(m.catalog.Structural) > 0 {
		return m.catalog.Structural[0]
	}
	if m.Strict {
		if len(m.catalog.Failures) > 0 {
			return m.catalog.Failures[0]
		}
		if err := m.preflight(entities); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(m.OutputDir, 0755); err != nil {
		return &hdk.OutputIOError{Path: m.OutputDir, Op: "creating", Err: err}
	}

	results := make([]EntityResult, len(entities))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.Concurrency)
	for i, entity := range entities {
		eg.Go(func() error {
			res, err := m.processEntity(ctx, entity)
			results[i] = res
			return err
		})
	}
	err := eg.Wait()
	for _, res := range results {
		if res.Entity != "" {
			run.Entities = append(run.Entities, res)
		}
	}
	return err
}

// preflight checks every derivation of every entity before any output is
// written.
func (m *Main) preflight(entities []string) error {
	for _, entity := range entities {
		docs, err := m.locator.Documents(entity)
		if err != nil {
			return errors.Wrapf(err, "locating documents for %s", entity)
		}
		if err := m.transformer.Preflight(entity, docs); err != nil {
			return err
		}
	}
	return nil
}

// finish records the run in the manifest and writes metrics, as configured.
func (m *Main) finish(run *Run) error {
	if m.Manifest != "" {
		man, err := OpenManifest(m.Manifest)
		if err != nil {
			return err
		}
		err = man.Record(run)
		if cerr := man.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, "recording run")
		}
	}
	if m.prom != nil {
		return m.prom.WriteTextfile(m.MetricsFile)
	}
	return nil
}

// OutputPath returns the file entity is written to:
// <output-dir>/<prefix>-<entity>-<postfix>.<format>, leaving out empty
// affixes.
func (m *Main) OutputPath(entity string) string {
	var parts []string
	for _, p := range []string{m.OutputPrefix, entity, m.OutputPostfix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return filepath.Join(m.OutputDir, strings.Join(parts, "-")+m.format.Ext())
}

func (m *Main) validate() error {
	if m.SpecDir == "" {
		return errors.New("spec-dir is required")
	}
	if m.OutputDir == "" {
		return errors.New("output-dir is required")
	}
	if m.DataDir == "" && m.S3Bucket == "" && m.Loader == nil {
		return errors.New("one of data-dir or s3-bucket is required")
	}
	if m.ChunkSize < 1 {
		return errors.Errorf("chunk-size must be positive, got %d", m.ChunkSize)
	}
	if m.Concurrency < 1 {
		return errors.Errorf("concurrency must be positive, got %d", m.Concurrency)
	}
	if _, err := stream.ParseFormat(m.OutputType); err != nil {
		return err
	}
	switch m.Locator {
	case "index", "grep":
	default:
		return errors.Errorf("unknown locator %q, must be index or grep", m.Locator)
	}
	if m.MetricsFile != "" && m.Stats != nil {
		return errors.New("metrics-file can't be used with a custom statter")
	}
	return nil
}

func (m *Main) setup() (err error) {
	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validating configuration")
	}
	m.format, _ = stream.ParseFormat(m.OutputType)
	m.sep = strings.NewReplacer(`\t`, "\t").Replace(m.Separator)

	// setup logging
	m.log = m.Logger
	if m.log == nil {
		logOut := os.Stderr
		if m.LogPath != "" {
			f, err := os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				return errors.Wrap(err, "opening log file")
			}
			m.logFile = f
			logOut = f
		}
		if m.Verbose {
			m.log = hdk.VerboseLogger{Logger: log.New(logOut, "", log.LstdFlags)}
		} else {
			m.log = hdk.StdLogger{Logger: log.New(logOut, "", log.LstdFlags)}
		}
	}

	m.stats = m.Stats
	if m.stats == nil {
		if m.MetricsFile != "" {
			m.prom = stats.NewPrometheus("hdk")
			m.stats = m.prom
		} else {
			m.stats = hdk.NopStatter{}
		}
	}

	loader, err := m.newLoader()
	if err != nil {
		return errors.Wrap(err, "getting table loader")
	}
	mapper := m.Mapper
	if mapper == nil {
		mapper, err = m.newMapper()
		if err != nil {
			return errors.Wrap(err, "getting mapper")
		}
	}
	m.transformer = transform.New(loader, mapper,
		transform.OptStrict(m.Strict), transform.OptLogger(m.log), transform.OptStatter(m.stats))

	m.catalog, err = spec.Load(m.SpecDir, spec.OptLogger(m.log))
	if err != nil {
		return errors.Wrap(err, "loading specifications")
	}
	if m.Locator == "grep" {
		m.locator = &spec.GrepLocator{Dir: m.SpecDir, Strict: m.Strict, Log: m.log}
	} else {
		m.locator = m.catalog
	}
	return nil
}

// closeLog closes the file opened for LogPath, if any.
func (m *Main) closeLog() {
	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
}

func (m *Main) newLoader() (hdk.TableLoader, error) {
	if m.Loader != nil {
		return m.Loader, nil
	}
	sep := '\t'
	if strings.EqualFold(m.TableExtension, ".csv") {
		sep = ','
	}
	if m.S3Bucket != "" {
		l, err := s3.NewLoader(m.S3Bucket,
			s3.OptLoaderRegion(m.S3Region),
			s3.OptLoaderPrefix(m.S3Prefix),
			s3.OptLoaderExtension(m.TableExtension),
			s3.OptLoaderSeparator(sep),
		)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	info, err := os.Stat(m.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "statting data directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("data directory %s is not a directory", m.DataDir)
	}
	return table.NewLoader(m.DataDir, table.WithExtension(m.TableExtension), table.WithSeparator(sep)), nil
}

func (m *Main) newMapper() (transform.Mapper, error) {
	var source, target *derive.Schema
	var err error
	if m.SourceSchema != "" {
		if source, err = derive.LoadSchema(m.SourceSchema); err != nil {
			return nil, errors.Wrap(err, "loading source schema")
		}
	}
	if m.TargetSchema != "" {
		if target, err = derive.LoadSchema(m.TargetSchema); err != nil {
			return nil, errors.Wrap(err, "loading target schema")
		}
	}
	return derive.New(source, target, derive.OptLogger(m.log)), nil
}

// processEntity writes entity to a partial file which is renamed into
// place only once it is complete, reconciling TSV headers first if needed.
// On failure the partial file is removed.
func (m *Main) processEntity(ctx context.Context, entity string) (res EntityResult, err error) {
	start := time.Now()
	res.Entity = entity
	docs, err := m.locator.Documents(entity)
	if err != nil {
		return res, errors.Wrapf(err, "locating documents for %s", entity)
	}
	if len(docs) == 0 {
		m.log.Printf("skipping %s (no spec files)", entity)
		res.NoSpecs = true
		return res, nil
	}
	m.log.Printf("starting %s", entity)

	path := m.OutputPath(entity)
	partial := path + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return res, &hdk.OutputIOError{Path: partial, Op: "creating", Err: err}
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(partial)
		}
	}()

	st, err := stream.New(m.format, stream.Options{KeyName: stream.KeyName(entity), Sep: m.sep})
	if err != nil {
		return res, errors.Wrap(err, "making stream")
	}
	records, sum := m.transformer.Transform(ctx, entity, docs)
	w := bufio.NewWriter(f)
	result, err := st.Process(hdk.Chunked(records, m.ChunkSize), func(s string) error {
		if _, err := w.WriteString(s); err != nil {
			return &hdk.OutputIOError{Path: partial, Op: "writing", Err: err}
		}
		return nil
	})
	res.Documents, res.Processed, res.Skipped, res.Records = sum.Documents, sum.Processed, sum.Skipped, sum.Records
	if err != nil {
		return res, errors.Wrapf(err, "processing %s", entity)
	}
	if err := w.Flush(); err != nil {
		return res, &hdk.OutputIOError{Path: partial, Op: "writing", Err: err}
	}
	if err := f.Close(); err != nil {
		return res, &hdk.OutputIOError{Path: partial, Op: "closing", Err: err}
	}

	if result.MustReconcile {
		m.log.Printf("rewriting %s (headers changed)", entity)
		err := stream.Reconcile(partial, result.Headers, stream.ReconcileOptions{Sep: m.sep, ChunkSize: m.ChunkSize})
		if err != nil {
			return res, errors.Wrapf(err, "reconciling %s", entity)
		}
		res.Reconciled = true
		m.stats.Count("reconciliations", 1, 1, "entity:"+entity)
	}
	if err := os.Rename(partial, path); err != nil {
		return res, &hdk.OutputIOError{Path: path, Op: "renaming", Err: err}
	}
	res.Output = path
	res.Duration = time.Since(start)
	m.stats.Timing("entity.duration", res.Duration, 1, "entity:"+entity)
	m.log.Printf("%s complete: %s, reconciled: %v", entity, sum, res.Reconciled)
	return res, nil
}
