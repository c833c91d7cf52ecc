// Package umi corrects sequencing errors in Unique Molecular Identifiers.
//
// Reads that originate from the same physical molecule can carry UMIs that
// differ only by sequencing error. Within one (gene, cell barcode) group,
// the package builds a directional similarity graph over the observed UMI
// sequences, extracts connected components, greedily assigns every UMI to
// its most abundant unclustered neighbor, and produces a map from each raw
// UMI to the representative of its cluster. The approach follows the
// directional method of Smith et al. (Genome Res 2017), with a Levenshtein
// distance standing in for Hamming so that indel errors are tolerated.
//
// Each group is clustered independently; the package holds no state across
// calls, so groups may be processed concurrently from any number of
// goroutines.
package umi

// Cluster runs the full directional clustering chain over one group's UMI
// counts and returns the resulting clusters. Every UMI in counts appears in
// exactly one cluster; each cluster is ordered by descending count, so its
// first element is the representative. The result is deterministic for a
// given counts map: ties are broken lexicographically, never by map
// iteration order.
func Cluster(counts Counts, threshold int) [][]string {
	adjList := BuildAdjacency(counts, threshold)
	components := ConnectedComponents(counts, adjList)
	return groupDirectional(components, counts)
}

// CorrectionMap inverts clusters into a raw UMI -> representative lookup.
// The representative of a cluster is its first member.
func CorrectionMap(clusters [][]string) map[string]string {
	correction := make(map[string]string)
	for _, cluster := range clusters {
		for _, member := range cluster {
			correction[member] = cluster[0]
		}
	}
	return correction
}

// Correct clusters one group's UMI counts and returns the correction map
// sending every raw UMI to its cluster representative.
func Correct(counts Counts, threshold int) map[string]string {
	return CorrectionMap(Cluster(counts, threshold))
}
