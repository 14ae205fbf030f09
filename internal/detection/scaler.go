package detection

import (
	"gonum.org/v1/gonum/stat"
)

// standardize returns a column-wise z-scored copy of x. Constant columns are
// centered but not scaled.
func standardize(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	cols := len(x[0])
	out := make([][]float64, len(x))
	for i := range out {
		out[i] = make([]float64, cols)
	}

	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		for i := range x {
			out[i][j] = (x[i][j] - mean) / std
		}
	}
	return out
}
