package hdk

import "iter"

// TableLoader gives lazy access to raw source tables by accession id.
// Implementations must be safe for concurrent use since entities may be
// processed in parallel.
type TableLoader interface {
	// Exists reports whether a backing file exists for id. It never fails;
	// any error while checking is reported as false.
	Exists(id string) bool

	// Rows returns the rows of table id in file order. It returns a
	// *TableNotFoundError if the table does not exist. The table is read
	// once per call to Rows, when the returned sequence is ranged over.
	Rows(id string) (iter.Seq2[Row, error], error)
}
