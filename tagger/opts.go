package tagger

import "github.com/scrna-tools/umitag/umi"

// Defaults for the tunable knobs of the pipeline.
const (
	// DefaultRefInterval is the width in bp of the genomic bins used to
	// synthesize gene labels for unannotated reads.
	DefaultRefInterval = 1000

	// DefaultCellGeneMaxReads caps the reads considered for one
	// gene + cell barcode combination. The cap bounds the quadratic
	// pairwise-comparison cost of UMI clustering; raise it only when the
	// observed UMI complexity warrants the extra work.
	DefaultCellGeneMaxReads = 20000

	// DefaultBatchSize is the number of groups clustered per dispatch unit.
	DefaultBatchSize = 50

	// DefaultParallelism is the number of concurrent batch workers.
	DefaultParallelism = 4
)

// Opts configures the UMI correction and tagging pipeline. There is no
// process-global configuration; an Opts value is threaded explicitly
// through every stage.
type Opts struct {
	// BamFile is the coordinate-sorted input BAM.
	BamFile string
	// IndexFile is the BAM index. Defaults to BamFile + ".bai". Only
	// consulted when Chrom is set.
	IndexFile string
	// Chrom restricts processing to a single chromosome. Empty processes
	// the whole file sequentially, with no index required.
	Chrom string
	// OutputPath receives the tagged BAM.
	OutputPath string
	// ReadTagsPath receives the read-tag TSV side output. A path ending in
	// .gz is gzip-compressed.
	ReadTagsPath string

	// GeneAssignsFile is the read_id/status/mapq/gene table.
	GeneAssignsFile string
	// TranscriptAssignsFile is the read_id/ref_id table. May be empty.
	TranscriptAssignsFile string
	// BarcodeTagsFile is the read_id/CB/UR table with alignment
	// coordinates.
	BarcodeTagsFile string

	RefInterval      int
	CellGeneMaxReads int
	EditDistance     int
	BatchSize        int
	Parallelism      int

	// Verbose draws a progress bar over clustering batches on stderr.
	Verbose bool
}

func (o Opts) withDefaults() Opts {
	if o.IndexFile == "" {
		o.IndexFile = o.BamFile + ".bai"
	}
	if o.RefInterval <= 0 {
		o.RefInterval = DefaultRefInterval
	}
	if o.CellGeneMaxReads <= 0 {
		o.CellGeneMaxReads = DefaultCellGeneMaxReads
	}
	if o.EditDistance <= 0 {
		o.EditDistance = umi.DefaultThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	return o
}
