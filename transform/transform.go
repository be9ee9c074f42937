// Package transform produces the ordered record sequence of one entity by
// applying every derivation of the entity's documents to the rows of their
// source tables.
package transform

import (
	"context"
	"fmt"
	"iter"

	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/spec"
	"github.com/pkg/errors"
)

// Transformer applies derivations to source tables. A single Transformer
// may be used for several entities concurrently.
type Transformer struct {
	loader hdk.TableLoader
	mapper Mapper
	strict bool
	log    hdk.Logger
	stats  hdk.Statter
}

// Option is a functional option for New.
type Option func(t *Transformer)

// OptStrict makes missing tables and data validation failures abort the
// sequence instead of skipping the derivation at fault.
func OptStrict(strict bool) Option {
	return func(t *Transformer) {
		t.strict = strict
	}
}

// OptLogger sets the logger.
func OptLogger(l hdk.Logger) Option {
	return func(t *Transformer) {
		t.log = l
	}
}

// OptStatter sets the statter.
func OptStatter(s hdk.Statter) Option {
	return func(t *Transformer) {
		t.stats = s
	}
}

// New returns a Transformer reading tables from loader and mapping rows
// with mapper.
func New(loader hdk.TableLoader, mapper Mapper, opts ...Option) *Transformer {
	t := &Transformer{
		loader: loader,
		mapper: mapper,
		log:    hdk.NopLogger{},
		stats:  hdk.NopStatter{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Summary counts what happened while transforming one entity. It is
// updated as the sequence returned by Transform is consumed.
type Summary struct {
	Entity    string
	Documents int
	// Processed is the number of derivations applied to every row of
	// their table.
	Processed int
	// Skipped is the number of derivations skipped, entirely or part way
	// through, because of a missing table or a data validation failure.
	Skipped int
	Records int64
}

func (s *Summary) String() string {
	return fmt.Sprintf("%s: %d documents, %d blocks processed, %d skipped, %d records",
		s.Entity, s.Documents, s.Processed, s.Skipped, s.Records)
}

// Transform returns the records of entity. Documents are visited in the
// given order, blocks in document order, derivations of entity within a
// block in key order, and rows in table order.
//
// A block which can't be parsed ends the sequence with a
// *hdk.StructuralSpecError regardless of strictness, as does any mapper
// error which is not recoverable. Missing tables and data validation
// failures skip the rest of the derivation at fault with a warning, or end
// the sequence when strict. The context is checked before each row.
func (t *Transformer) Transform(ctx context.Context, entity string, docs []*spec.Document) (iter.Seq2[hdk.Record, error], *Summary) {
	sum := &Summary{Entity: entity, Documents: len(docs)}
	return func(yield func(hdk.Record, error) bool) {
		for _, doc := range docs {
			t.log.Printf("processing spec file: %s", doc.Name())
			for _, block := range doc.Blocks {
				derivations, err := block.Derivations()
				if err != nil {
					yield(nil, err)
					return
				}
				for _, d := range derivations {
					if d.Name != entity {
						continue
					}
					t.log.Debugf("processing %s block %d from %s", doc.Name(), block.Index, d.PopulatedFrom)
					if !t.apply(ctx, d, sum, yield) {
						return
					}
				}
			}
		}
	}, sum
}

// apply yields the records of derivation d. It returns false once the
// sequence must end, either because the consumer stopped or because an
// error was yielded.
func (t *Transformer) apply(ctx context.Context, d *spec.ClassDerivation, sum *Summary, yield func(hdk.Record, error) bool) bool {
	tag := "entity:" + d.Name
	var n int64
	defer func() {
		if n > 0 {
			t.stats.Count("records", n, 1, tag)
		}
	}()

	rows, err := t.loader.Rows(d.PopulatedFrom)
	if err != nil {
		if t.skip(d, sum, err) {
			return true
		}
		yield(nil, t.wrap(d, err))
		return false
	}
	for row, err := range rows {
		if err == nil {
			err = ctx.Err()
		}
		var rec hdk.Record
		if err == nil {
			rec, err = t.mapper.Map(row, d.PopulatedFrom, d)
		}
		if err != nil {
			if t.skip(d, sum, err) {
				return true
			}
			yield(nil, t.wrap(d, err))
			return false
		}
		if rec == nil {
			continue
		}
		if !yield(rec, nil) {
			return false
		}
		n++
		sum.Records++
	}
	sum.Processed++
	t.stats.Count("blocks.processed", 1, 1, tag)
	return true
}

// skip reports whether err may be skipped at derivation granularity, and
// if so logs and counts it.
func (t *Transformer) skip(d *spec.ClassDerivation, sum *Summary, err error) bool {
	if t.strict || !hdk.IsRecoverable(err) {
		return false
	}
	t.log.Printf("warning: skipping %s block %d for %s (table %s): %v", d.Document, d.Block, d.Name, d.PopulatedFrom, err)
	sum.Skipped++
	t.stats.Count("blocks.skipped", 1, 1, "entity:"+d.Name)
	return true
}

func (t *Transformer) wrap(d *spec.ClassDerivation, err error) error {
	return errors.Wrapf(err, "processing %s block %d for %s", d.Document, d.Block, d.Name)
}

// Preflight checks that every derivation of entity in docs parses and
// references an existing table, without reading any rows. It returns the
// first *hdk.StructuralSpecError or *hdk.TableNotFoundError found.
func (t *Transformer) Preflight(entity string, docs []*spec.Document) error {
	for _, doc := range docs {
		for _, block := range doc.Blocks {
			derivations, err := block.Derivations()
			if err != nil {
				return err
			}
			for _, d := range derivations {
				if d.Name == entity && !t.loader.Exists(d.PopulatedFrom) {
					return t.wrap(d, &hdk.TableNotFoundError{TableID: d.PopulatedFrom})
				}
			}
		}
	}
	return nil
}
