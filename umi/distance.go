package umi

// Levenshtein computes the edit distance between two UMI sequences: the
// minimum number of single-character insertions, deletions, and
// substitutions it takes to transform s1 into s2. Unlike a Hamming
// distance, indels are tolerated, so s1 and s2 may have different lengths.
// Nanopore reads produce UMIs with frequent indel errors, so a plain
// substitution distance would miss most error variants.
func Levenshtein(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []byte(s1)
	r2 := []byte(s2)

	// Two-row DP over the edit matrix. prev is row i-1, cur is row i.
	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			diagonal := prev[j-1]
			if r1[i-1] != r2[j-1] {
				diagonal++
			}
			down := prev[j] + 1
			right := cur[j-1] + 1

			minValue := diagonal
			if down < minValue {
				minValue = down
			}
			if right < minValue {
				minValue = right
			}
			cur[j] = minValue
		}
		prev, cur = cur, prev
	}
	return prev[len(r2)]
}
