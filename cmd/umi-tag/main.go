package main

/*
  umi-tag corrects sequencing errors in the UMIs of single-cell reads and
  writes a BAM re-tagged with the corrected UMI (UB), gene (GN), and
  transcript (TR), plus a flat read-tag TSV. Reads are clustered per
  (gene, cell barcode) group with the directional method; see
  github.com/scrna-tools/umitag/umi.
*/

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/scrna-tools/umitag/tagger"
)

var (
	bamFile           = flag.String("bam", "", "Input BAM filename")
	indexFile         = flag.String("index", "", "Input BAM index filename. By default, set to input BAM filename + .bai")
	chrom             = flag.String("chrom", "", "Restrict tagging to this chromosome. By default the whole BAM is processed")
	outputPath        = flag.String("output", "tagged.sorted.bam", "Output BAM filename")
	readTagsPath      = flag.String("read-tags", "read_tags.tsv", "Output read-tag TSV filename. A .gz suffix enables compression")
	geneAssigns       = flag.String("gene-assigns", "", "TSV of read/gene assignments (read_id, status, mapq, gene; no header)")
	transcriptAssigns = flag.String("transcript-assigns", "", "TSV of read/transcript assignments (read_id, ref_id)")
	barcodeTags       = flag.String("barcode-tags", "", "TSV of read/barcode/UMI tags (read_id, CB, UR, chr, start, end)")
	refInterval       = flag.Int("ref-interval", tagger.DefaultRefInterval, "Width in bp of the genomic bins used as gene names for unannotated reads")
	maxReads          = flag.Int("cell-gene-max-reads", tagger.DefaultCellGeneMaxReads, "Maximum reads clustered per gene + cell barcode combination; the rest are dropped to bound clustering cost")
	editDistance      = flag.Int("edit-distance", 0, "Maximum edit distance at which two UMIs are linked [2]")
	batchSize         = flag.Int("batch-size", tagger.DefaultBatchSize, "Number of groups clustered per worker batch")
	parallelism       = flag.Int("threads", tagger.DefaultParallelism, "Number of parallel clustering workers")
	progress          = flag.Bool("progress", false, "Draw a progress bar over clustering batches")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}
	if *bamFile == "" {
		log.Fatalf("-bam is required")
	}
	if *geneAssigns == "" || *barcodeTags == "" {
		log.Fatalf("-gene-assigns and -barcode-tags are required")
	}

	opts := tagger.Opts{
		BamFile:               *bamFile,
		IndexFile:             *indexFile,
		Chrom:                 *chrom,
		OutputPath:            *outputPath,
		ReadTagsPath:          *readTagsPath,
		GeneAssignsFile:       *geneAssigns,
		TranscriptAssignsFile: *transcriptAssigns,
		BarcodeTagsFile:       *barcodeTags,
		RefInterval:           *refInterval,
		CellGeneMaxReads:      *maxReads,
		EditDistance:          *editDistance,
		BatchSize:             *batchSize,
		Parallelism:           *parallelism,
		Verbose:               *progress,
	}

	ctx := vcontext.Background()
	if _, err := tagger.Run(ctx, opts); err != nil {
		log.Fatalf("umi-tag: %v", err)
	}
}
