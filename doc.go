// hdk is the Harmonization Development Kit. It maps raw cohort tables into a
// target entity model according to declarative derivation documents, and
// streams every entity into its own output file.
//
// A harmonization run is a short pipeline. The interfaces shared by the
// stages live in this package; implementations live in sub-packages.
//
// 1. Discovery
//
//    Package spec parses every derivation document once and records which
//    entities are defined at the top level of a class_derivations block.
//    Derivations nested inside object_derivations describe embedded values
//    (a quantity with its unit, say) and are never harvested as entities of
//    their own. The resulting Catalog doubles as the locator which hands the
//    orchestrator the documents contributing to one entity.
//
// 2. Source tables
//
//    A TableLoader resolves a populated_from accession id to the rows of a
//    delimited file, either in a local directory (package table) or in an S3
//    bucket (package aws/s3). Tables are read lazily, once per derivation.
//
// 3. Transform
//
//    The transform.Transformer walks documents, blocks and rows in order and
//    asks a Mapper to turn each row into a Record. Failures are classified
//    (see ClassOf): missing tables and data validation problems skip the
//    offending derivation unless running strict, while structural
//    specification errors always abort.
//
// 4. Stream
//
//    Records are grouped into chunks and serialized by one of the stream
//    formats. TSV output locks its header on the first row; when later rows
//    bring new columns, a second bounded pass (stream.Reconcile) rewrites the
//    header and pads the rows that were written before.
//
// Package harmonize ties the stages together and is what the hdk command
// runs.
package hdk
