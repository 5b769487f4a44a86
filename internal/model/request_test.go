package model

import (
	"errors"
	"testing"
)

// validRequest returns a request that passes Validate.
func validRequest() PipelineRequest {
	return PipelineRequest{
		DatasetPath:      "testdata/adult.csv",
		LabelField:       "income",
		ProtectedFields:  []string{"sex", "race"},
		HiddenLayerSizes: []int{64, 32},
		Runtime:          DefaultRuntimeOptions(),
	}
}

// TestPipelineRequestValidate tests the request invariants.
func TestPipelineRequestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mutate   func(*PipelineRequest)
		expected error
	}{
		{
			name:     "valid request passes",
			mutate:   func(*PipelineRequest) {},
			expected: nil,
		},
		{
			name:     "empty dataset path fails",
			mutate:   func(r *PipelineRequest) { r.DatasetPath = "" },
			expected: ErrEmptyDatasetPath,
		},
		{
			name:     "empty label column fails",
			mutate:   func(r *PipelineRequest) { r.LabelField = "" },
			expected: ErrEmptyLabelField,
		},
		{
			name:     "no protected columns fails",
			mutate:   func(r *PipelineRequest) { r.ProtectedFields = nil },
			expected: ErrNoProtectedFields,
		},
		{
			name:     "protected column equal to label fails",
			mutate:   func(r *PipelineRequest) { r.ProtectedFields = []string{"sex", "income"} },
			expected: ErrProtectedIsLabel,
		},
		{
			name:     "duplicate protected column fails",
			mutate:   func(r *PipelineRequest) { r.ProtectedFields = []string{"sex", "sex"} },
			expected: ErrDuplicateProtectedField,
		},
		{
			name:     "single hidden layer fails",
			mutate:   func(r *PipelineRequest) { r.HiddenLayerSizes = []int{64} },
			expected: ErrTooFewHiddenLayers,
		},
		{
			name:     "no hidden layers fails",
			mutate:   func(r *PipelineRequest) { r.HiddenLayerSizes = nil },
			expected: ErrTooFewHiddenLayers,
		},
		{
			name:     "zero hidden layer size fails",
			mutate:   func(r *PipelineRequest) { r.HiddenLayerSizes = []int{64, 0} },
			expected: ErrNonPositiveHiddenLayer,
		},
		{
			name:     "negative hidden layer size fails",
			mutate:   func(r *PipelineRequest) { r.HiddenLayerSizes = []int{64, -8} },
			expected: ErrNonPositiveHiddenLayer,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := validRequest()
			tc.mutate(&req)

			err := req.Validate()
			if tc.expected == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.expected) {
				t.Errorf("got %v, expected %v", err, tc.expected)
			}
		})
	}
}

// TestRuntimeOptionsNormalize tests default substitution for zero values.
func TestRuntimeOptionsNormalize(t *testing.T) {
	t.Parallel()

	t.Run("zero value gets all defaults", func(t *testing.T) {
		t.Parallel()

		got := RuntimeOptions{}.Normalize()
		if got != DefaultRuntimeOptions() {
			t.Errorf("got %+v, expected defaults %+v", got, DefaultRuntimeOptions())
		}
	})

	t.Run("explicit values survive", func(t *testing.T) {
		t.Parallel()

		got := RuntimeOptions{EpochCount: 5, QidThreshold: 0.25}.Normalize()
		if got.EpochCount != 5 {
			t.Errorf("epoch count overwritten: got %d", got.EpochCount)
		}
		if got.QidThreshold != 0.25 {
			t.Errorf("qid threshold overwritten: got %v", got.QidThreshold)
		}
		if got.BatchSize != DefaultBatchSize {
			t.Errorf("batch size not defaulted: got %d", got.BatchSize)
		}
	})

	t.Run("negative values get defaults", func(t *testing.T) {
		t.Parallel()

		got := RuntimeOptions{EpochCount: -3, NeighborCount: -1}.Normalize()
		if got.EpochCount != DefaultEpochCount {
			t.Errorf("got %d, expected %d", got.EpochCount, DefaultEpochCount)
		}
		if got.NeighborCount != DefaultNeighborCount {
			t.Errorf("got %d, expected %d", got.NeighborCount, DefaultNeighborCount)
		}
	})
}

// TestProtectedValues tests the protected-value probe construction.
func TestProtectedValues(t *testing.T) {
	t.Parallel()

	t.Run("one entry per index with the fixed pair", func(t *testing.T) {
		t.Parallel()

		probe := ProtectedValues([]int{0, 3, 7})
		if len(probe) != 3 {
			t.Fatalf("got %d entries, expected 3", len(probe))
		}

		for _, key := range []string{"0", "3", "7"} {
			pair, ok := probe[key]
			if !ok {
				t.Fatalf("missing key %q", key)
			}
			if len(pair) != 2 || pair[0] != 0.0 || pair[1] != 1.0 {
				t.Errorf("key %q: got %v, expected [0 1]", key, pair)
			}
		}
	})

	t.Run("empty index list yields empty probe", func(t *testing.T) {
		t.Parallel()

		probe := ProtectedValues(nil)
		if len(probe) != 0 {
			t.Errorf("got %d entries, expected 0", len(probe))
		}
	})
}

// TestDefaultHiddenLayerSizes tests the fallback architecture.
func TestDefaultHiddenLayerSizes(t *testing.T) {
	t.Parallel()

	sizes := DefaultHiddenLayerSizes()
	expected := []int{64, 32, 16, 8, 4}
	if len(sizes) != len(expected) {
		t.Fatalf("got %d layers, expected %d", len(sizes), len(expected))
	}
	for i, size := range expected {
		if sizes[i] != size {
			t.Errorf("layer %d: got %d, expected %d", i, sizes[i], size)
		}
	}
}
