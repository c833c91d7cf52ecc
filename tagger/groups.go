package tagger

import (
	"fmt"
	"sort"
)

// GroupKey identifies one independent clustering unit: all reads sharing a
// resolved gene label and a corrected cell barcode.
type GroupKey struct {
	Gene    string
	Barcode string
}

// regionName synthesizes a gene label for an unannotated read from its
// alignment midpoint, binned into a fixed-width genomic interval:
// <chrom>_<interval_start>_<interval_end>. A midpoint landing exactly on a
// bin boundary produces a zero-width label (floor and ceil coincide); that
// quirk is load-bearing, since the label only has to be a stable grouping
// key.
func regionName(chrom string, start, end, interval int) string {
	midpoint := (start + end) / 2
	intervalStart := midpoint / interval * interval
	intervalEnd := intervalStart
	if midpoint%interval != 0 {
		intervalEnd = intervalStart + interval
	}
	return fmt.Sprintf("%s_%d_%d", chrom, intervalStart, intervalEnd)
}

// buildGroups indexes reads by group key, enforcing the per-group cap in
// first-seen order. Reads beyond the cap are dropped silently; they get no
// corrected UMI and therefore never reach the tagged output.
func buildGroups(annotations []ReadAnnotation, maxReads int) map[GroupKey][]ReadAnnotation {
	groups := map[GroupKey][]ReadAnnotation{}
	for _, ann := range annotations {
		key := GroupKey{Gene: ann.Gene, Barcode: ann.Barcode}
		if len(groups[key]) >= maxReads {
			continue
		}
		groups[key] = append(groups[key], ann)
	}
	return groups
}

// partitionKeys splits the distinct group keys into fixed-size batches. The
// keys are sorted first so the batch split is deterministic.
func partitionKeys(groups map[GroupKey][]ReadAnnotation, batchSize int) [][]GroupKey {
	keys := make([]GroupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Gene != keys[j].Gene {
			return keys[i].Gene < keys[j].Gene
		}
		return keys[i].Barcode < keys[j].Barcode
	})

	var batches [][]GroupKey
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[start:end])
	}
	return batches
}
