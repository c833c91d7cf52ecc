package tagger

import (
	"context"
	"os"

	"github.com/grailbio/base/traverse"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/scrna-tools/umitag/umi"
)

// TagResult carries the values attached to one read at tagging time.
type TagResult struct {
	UMI        string
	Gene       string
	Transcript string
	Barcode    string
}

// correctGroups runs the per-group correction pipeline over every batch and
// merges the per-read results, keyed by read id. Batches are distributed
// across Parallelism workers; groups within a batch run sequentially. Each
// group's count map, adjacency structure, and correction map are owned by
// the worker processing its batch, so no locking is needed and completion
// order cannot affect the result. Cancellation aborts the whole dispatch;
// nothing partial is merged.
func correctGroups(ctx context.Context, groups map[GroupKey][]ReadAnnotation,
	batches [][]GroupKey, opts Opts) (map[string]TagResult, error) {
	merged := map[string]TagResult{}
	if len(batches) == 0 {
		return merged, nil
	}
	parallelism := opts.Parallelism
	if parallelism > len(batches) {
		parallelism = len(batches)
	}
	if parallelism < 1 {
		parallelism = 1
	}

	var pbs *mpb.Progress
	var bar *mpb.Bar
	if opts.Verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(batches)),
			mpb.PrependDecorators(
				decor.Name("clustered batches: "),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}

	batchResults := make([]map[string]TagResult, len(batches))
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(batches)) / parallelism
		endIdx := ((jobIdx + 1) * len(batches)) / parallelism
		for idx := startIdx; idx < endIdx; idx++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			batchResults[idx] = correctBatch(batches[idx], groups, opts.EditDistance)
			if bar != nil {
				bar.Increment()
			}
		}
		return nil
	})
	if pbs != nil {
		if err != nil {
			bar.Abort(true)
		}
		pbs.Wait()
	}
	if err != nil {
		return nil, err
	}

	for _, batch := range batchResults {
		for readID, result := range batch {
			merged[readID] = result
		}
	}
	return merged, nil
}

// correctBatch clusters every group in one batch and maps each member
// read's raw UMI through the group's correction map.
func correctBatch(keys []GroupKey, groups map[GroupKey][]ReadAnnotation,
	threshold int) map[string]TagResult {
	results := map[string]TagResult{}
	for _, key := range keys {
		reads := groups[key]
		counts := make(umi.Counts)
		for i := range reads {
			counts[reads[i].RawUMI]++
		}
		correction := umi.Correct(counts, threshold)
		for i := range reads {
			read := &reads[i]
			results[read.ReadID] = TagResult{
				UMI:        correction[read.RawUMI],
				Gene:       read.Gene,
				Transcript: read.Transcript,
				Barcode:    read.Barcode,
			}
		}
	}
	return results
}
