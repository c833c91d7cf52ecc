// Package tagger joins per-read annotations onto alignment records, runs
// UMI error correction over every (gene, cell barcode) group, and re-emits
// the alignments with corrected-UMI, gene, and transcript tags attached.
//
// The pipeline has four stages: load and join the annotation tables, group
// reads by (gene, barcode) under a per-group cap, cluster each group's UMIs
// in parallel batches, and stream the BAM once to attach tags. Groups are
// fully independent, so the clustering stage scales linearly with workers
// and its output is identical for any batch split.
package tagger

import (
	"context"

	"github.com/grailbio/base/log"
)

// Run executes the full correction and tagging pipeline described by opts
// and returns scan/emit counts. Zero-valued knobs in opts are filled with
// defaults. Cancelling ctx aborts clustering with no partial results and
// leaves the outputs unwritten.
func Run(ctx context.Context, opts Opts) (Stats, error) {
	opts = opts.withDefaults()

	annotations, err := loadAnnotations(ctx, opts)
	if err != nil {
		return Stats{}, err
	}
	groups := buildGroups(annotations, opts.CellGeneMaxReads)
	batches := partitionKeys(groups, opts.BatchSize)
	log.Debug.Printf("clustering %d groups in %d batches of <=%d, %d workers",
		len(groups), len(batches), opts.BatchSize, opts.Parallelism)

	results, err := correctGroups(ctx, groups, batches, opts)
	if err != nil {
		return Stats{}, err
	}

	stats, err := tagAlignments(ctx, opts, results)
	if err != nil {
		return stats, err
	}
	log.Printf("%s: tagged %d of %d records", opts.BamFile, stats.Tagged, stats.Records)
	return stats, nil
}
