package detection

import (
	"math"
	"math/rand/v2"
	"slices"
)

const eulerGamma = 0.5772156649015329

// isolationForest is fit once per Analyze call and discarded afterwards.
type isolationForest struct {
	trees      []*itreeNode
	sampleSize int
}

type itreeNode struct {
	feature     int
	split       float64
	left, right *itreeNode
	size        int // samples reaching a leaf
}

func (n *itreeNode) leaf() bool { return n.left == nil }

// fitForest grows trees on random subsamples of x without replacement.
func fitForest(x [][]float64, trees, sampleSize int, rng *rand.Rand) *isolationForest {
	psi := min(sampleSize, len(x))
	maxDepth := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	f := &isolationForest{sampleSize: psi, trees: make([]*itreeNode, trees)}
	for t := range f.trees {
		idx := rng.Perm(len(x))[:psi]
		f.trees[t] = growTree(x, idx, 0, maxDepth, rng)
	}
	return f
}

func growTree(x [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *itreeNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &itreeNode{size: len(idx)}
	}

	// Pick a random feature that still varies in this partition.
	for _, feature := range rng.Perm(len(x[idx[0]])) {
		lo, hi := x[idx[0]][feature], x[idx[0]][feature]
		for _, i := range idx[1:] {
			lo = min(lo, x[i][feature])
			hi = max(hi, x[i][feature])
		}
		if lo == hi {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if x[i][feature] < split {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		return &itreeNode{
			feature: feature,
			split:   split,
			left:    growTree(x, left, depth+1, maxDepth, rng),
			right:   growTree(x, right, depth+1, maxDepth, rng),
		}
	}
	return &itreeNode{size: len(idx)}
}

func (n *itreeNode) pathLength(p []float64, depth int) float64 {
	for !n.leaf() {
		if p[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean unsuccessful search length in a BST of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// scoreSamples returns the negated anomaly score of each row: values near -1
// are anomalous, values near -0.5 are ordinary.
func (f *isolationForest) scoreSamples(x [][]float64) []float64 {
	norm := averagePathLength(f.sampleSize)
	scores := make([]float64, len(x))
	for i, p := range x {
		var sum float64
		for _, tree := range f.trees {
			sum += tree.pathLength(p, 0)
		}
		mean := sum / float64(len(f.trees))
		if norm == 0 {
			scores[i] = -1
			continue
		}
		scores[i] = -math.Pow(2, -mean/norm)
	}
	return scores
}

// decisionFunction shifts scores so that the contamination fraction of the
// batch falls below zero.
func decisionFunction(scores []float64, contamination float64) []float64 {
	offset := percentile(scores, contamination*100)
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s - offset
	}
	return out
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
