package dataset

import (
	"math"
	"math/rand"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Split is a disjoint train/test partition of a frame. The index slices refer
// to rows of the source frame.
type Split struct {
	Train      *Frame
	Test       *Frame
	TrainIndex []int
	TestIndex  []int
}

// TrainTestSplit partitions the frame with a permutation drawn from seed.
// The test part has ceil(testSize*n) rows; both parts must be non-empty.
func TrainTestSplit(f *Frame, testSize float64, seed int64) (*Split, error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, errors.NewConfigurationError("split", "test_size", "must be in (0, 1)", testSize)
	}
	n := f.NRows()
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, errors.NewConfigurationError("split", "test_size",
			"split leaves an empty train or test set", testSize)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testIdx := append([]int(nil), perm[:nTest]...)
	trainIdx := append([]int(nil), perm[nTest:]...)

	train, err := f.Select(trainIdx)
	if err != nil {
		return nil, err
	}
	test, err := f.Select(testIdx)
	if err != nil {
		return nil, err
	}
	return &Split{Train: train, Test: test, TrainIndex: trainIdx, TestIndex: testIdx}, nil
}

// SampleRows returns min(size, n) distinct row indices drawn with seed. When
// size covers every row, all indices are returned in order.
func SampleRows(n, size int, seed int64) ([]int, error) {
	if size <= 0 {
		return nil, errors.NewConfigurationError("explain", "explain_sample_size", "must be positive", size)
	}
	if size >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return append([]int(nil), perm[:size]...), nil
}

// Sample selects SampleRows(f.NRows(), size, seed) from the frame.
func (f *Frame) Sample(size int, seed int64) (*Frame, error) {
	rows, err := SampleRows(f.NRows(), size, seed)
	if err != nil {
		return nil, err
	}
	return f.Select(rows)
}
