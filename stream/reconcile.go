package stream

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pilosa/hdk"
)

// DefaultChunkSize is the number of records, or lines when reconciling,
// handled per chunk.
const DefaultChunkSize = 1000

// ReconcileOptions configure Reconcile. Zero values mean a tab separator
// and DefaultChunkSize.
type ReconcileOptions struct {
	Sep       string
	ChunkSize int
}

// Reconcile rewrites the delimited file at path so that its header line is
// headers, escaped as TSVStream.Header does, and every data line has at least len(headers) fields, padding
// with empty fields. Lines are never trimmed or reordered. The new content
// is written to a temporary file next to path which replaces path only once
// it is complete and synced; on failure path is left untouched. Errors are
// *hdk.OutputIOError.
func Reconcile(path string, headers []string, opts ReconcileOptions) (err error) {
	if opts.Sep == "" {
		opts.Sep = "\t"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	fail := func(op string, err error) error {
		return &hdk.OutputIOError{Path: path, Op: op, Err: err}
	}

	src, err := os.Open(path)
	if err != nil {
		return fail("opening", err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fail("statting", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fail("creating temporary file for", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(NewTSVStream(opts.Sep, "", "").Header(headers)); err != nil {
		return fail("writing", err)
	}

	r := bufio.NewReader(src)
	first := true
	chunk := make([]string, 0, opts.ChunkSize)
	flush := func() error {
		for _, line := range chunk {
			if _, err := w.WriteString(pad(line, len(headers), opts.Sep)); err != nil {
				return err
			}
		}
		chunk = chunk[:0]
		return w.Flush()
	}
	for {
		line, rerr := r.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return fail("reading", rerr)
		}
		if line != "" {
			if first {
				first = false
			} else {
				chunk = append(chunk, line)
			}
		}
		if len(chunk) == opts.ChunkSize || (rerr == io.EOF && len(chunk) > 0) {
			if err := flush(); err != nil {
				return fail("writing", err)
			}
		}
		if rerr == io.EOF {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return fail("writing", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return fail("setting mode of", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("closing", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fail("replacing", err)
	}
	return nil
}

// pad returns line with empty fields appended up to n fields, terminated
// by a newline.
func pad(line string, n int, sep string) string {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Count(line, sep) + 1
	if fields < n {
		line += strings.Repeat(sep, n-fields)
	}
	return line + "\n"
}
