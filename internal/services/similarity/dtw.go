package similarity

import (
	"errors"
	"math"
)

// MemoryMode controls how the DTW cost matrix is stored.
type MemoryMode int

const (
	// FullMatrix keeps the whole (n+1)x(m+1) matrix.
	FullMatrix MemoryMode = iota
	// RollingRows keeps only the previous and current rows. Distances are identical.
	RollingRows
)

// DTWOptions configures Dynamic Time Warping.
//
//   - Window: Sakoe-Chiba band, the maximum |i-j| considered. 0 means unconstrained.
//   - MemoryMode: FullMatrix or RollingRows.
type DTWOptions struct {
	Window     int
	MemoryMode MemoryMode
}

var (
	// ErrEmptySequence indicates one or both inputs are empty.
	ErrEmptySequence = errors.New("dtw: input sequences must be non-empty")
	// ErrNegativeWindow indicates a band narrower than zero.
	ErrNegativeWindow = errors.New("dtw: window must be >= 0")
)

// DTW returns the accumulated |a_i - b_j| cost along the optimal warping path.
//
//	D[0][0] = 0, D[i][0] = D[0][j] = +Inf
//	D[i][j] = |a[i-1]-b[j-1]| + min(D[i-1][j], D[i][j-1], D[i-1][j-1])
func DTW(a, b []float64, opts DTWOptions) (float64, error) {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return 0, ErrEmptySequence
	}
	if opts.Window < 0 {
		return 0, ErrNegativeWindow
	}
	window := math.MaxInt32
	if opts.Window > 0 {
		// the band must at least reach the corner cell
		window = max(opts.Window, abs(n-m))
	}
	inf := math.Inf(1)

	if opts.MemoryMode == RollingRows {
		prev := make([]float64, m+1)
		curr := make([]float64, m+1)
		for j := 1; j <= m; j++ {
			prev[j] = inf
		}
		for i := 1; i <= n; i++ {
			curr[0] = inf
			for j := 1; j <= m; j++ {
				if abs(i-j) > window {
					curr[j] = inf
					continue
				}
				curr[j] = math.Abs(a[i-1]-b[j-1]) + min(prev[j], curr[j-1], prev[j-1])
			}
			prev, curr = curr, prev
		}
		return prev[m], nil
	}

	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		dp[i][0] = inf
	}
	for j := 1; j <= m; j++ {
		dp[0][j] = inf
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if abs(i-j) > window {
				dp[i][j] = inf
				continue
			}
			dp[i][j] = math.Abs(a[i-1]-b[j-1]) + min(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
		}
	}
	return dp[n][m], nil
}

// DTWSimilarity maps the DTW distance of two equal-length sequences to
// max(0, 1 - D/(L*DeviationBound)).
func DTWSimilarity(a, b []float64, opts DTWOptions) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	d, err := DTW(a, b, opts)
	if err != nil || math.IsInf(d, 0) || math.IsNaN(d) {
		return 0
	}
	return clamp01(1 - d/(float64(len(a))*DeviationBound))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
