package umi

import "sort"

// DefaultThreshold is the default maximum edit distance at which two UMIs
// are considered sequencing-error variants of one another.
const DefaultThreshold = 2

// Counts maps each distinct raw UMI observed within one (gene, cell
// barcode) group to its occurrence count. A Counts map is owned by a single
// group and is never shared across groups.
type Counts map[string]int

// sortByCountDesc orders umis by descending count, breaking ties
// lexicographically. The tie-break makes every downstream ordering
// deterministic; correctness of the clustering depends on it.
func sortByCountDesc(umis []string, counts Counts) {
	sort.Slice(umis, func(i, j int) bool {
		ci, cj := counts[umis[i]], counts[umis[j]]
		if ci != cj {
			return ci > cj
		}
		return umis[i] < umis[j]
	})
}

// BuildAdjacency builds the directional adjacency structure over a group's
// UMIs. A directed edge u1->u2 is admitted iff the two sequences are within
// threshold edit distance and count(u1) >= 2*count(u2)-1, i.e. u1 is
// abundant enough to have plausibly produced u2 via sequencing error. The
// two directions are tested independently, so the structure is asymmetric.
// Every UMI appears as a key; isolated UMIs map to an empty neighbor list.
//
// Cost is O(k^2) in the number of distinct UMIs. Callers bound k by capping
// reads per group before counting.
func BuildAdjacency(counts Counts, threshold int) map[string][]string {
	umis := make([]string, 0, len(counts))
	for u := range counts {
		umis = append(umis, u)
	}
	sort.Strings(umis)

	adjList := make(map[string][]string, len(umis))
	for _, u := range umis {
		adjList[u] = nil
	}
	for i := 0; i < len(umis); i++ {
		for j := i + 1; j < len(umis); j++ {
			u1, u2 := umis[i], umis[j]
			if Levenshtein(u1, u2) > threshold {
				continue
			}
			if counts[u1] >= 2*counts[u2]-1 {
				adjList[u1] = append(adjList[u1], u2)
			}
			if counts[u2] >= 2*counts[u1]-1 {
				adjList[u2] = append(adjList[u2], u1)
			}
		}
	}
	return adjList
}

// breadthFirstSearch returns all UMIs reachable from start by following the
// adjacency lists. The traversal uses an explicit FIFO queue rather than
// recursion; components can grow large in high-duplication libraries and
// must not be bounded by stack depth.
func breadthFirstSearch(start string, adjList map[string][]string) []string {
	searched := map[string]bool{start: true}
	queue := []string{start}
	component := make([]string, 0, 1)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		for _, next := range adjList[node] {
			if !searched[next] {
				searched[next] = true
				queue = append(queue, next)
			}
		}
	}
	return component
}

// ConnectedComponents partitions the adjacency structure into components.
// UMIs are visited in descending count order so that the returned slice is
// ordered by the count of each component's most abundant member, highest
// first. Once a UMI has been absorbed into a component it is never visited
// again.
func ConnectedComponents(counts Counts, adjList map[string][]string) [][]string {
	nodes := make([]string, 0, len(adjList))
	for node := range adjList {
		nodes = append(nodes, node)
	}
	sortByCountDesc(nodes, counts)

	found := make(map[string]bool, len(nodes))
	var components [][]string
	for _, node := range nodes {
		if found[node] {
			continue
		}
		component := breadthFirstSearch(node, adjList)
		for _, n := range component {
			found[n] = true
		}
		components = append(components, component)
	}
	return components
}

// groupDirectional assigns every UMI to a single cluster. Components arrive
// ordered by top-member count, so higher-abundance UMIs always claim
// contested members first: a multi-member component is re-sorted by
// descending count and any member already claimed by an earlier cluster is
// skipped. Singleton components pass through unchanged.
func groupDirectional(components [][]string, counts Counts) [][]string {
	observed := make(map[string]bool, len(counts))
	var groups [][]string
	for _, component := range components {
		if len(component) == 1 {
			observed[component[0]] = true
			groups = append(groups, component)
			continue
		}
		sorted := append([]string(nil), component...)
		sortByCountDesc(sorted, counts)
		cluster := make([]string, 0, len(sorted))
		for _, node := range sorted {
			if !observed[node] {
				observed[node] = true
				cluster = append(cluster, node)
			}
		}
		groups = append(groups, cluster)
	}
	return groups
}
