package sharder

import (
	"fmt"
	"reflect"
	"testing"

	"jaytaylor.com/shardpress/domain"
)

// runPacker feeds rows of the given sizes through a packer and returns the
// sizes grouped by the shard they were flushed into.
func runPacker(t *testing.T, target int64, min int64, max int64, sizes []int64) [][]int64 {
	t.Helper()

	shards := [][]int64{}
	p := newPacker(target, min, max, func(task shardTask) error {
		if expected, actual := len(shards), task.seq; actual != expected {
			t.Errorf("Expected shard seq=%v but actual=%v", expected, actual)
		}
		group := []int64{}
		for _, rec := range task.records {
			group = append(group, rec.Size)
		}
		shards = append(shards, group)
		return nil
	})

	for i, size := range sizes {
		rec := domain.FileRecord{
			ProjectName: "jay/tay",
			FilePath:    fmt.Sprintf("f%v.py", i),
			Size:        size,
		}
		if err := p.add(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.finish(); err != nil {
		t.Fatal(err)
	}
	return shards
}

func TestPackerCloseOutRules(t *testing.T) {
	testCases := []struct {
		target int64
		min    int64
		max    int64
		sizes  []int64
		shards [][]int64
	}{
		{
			// Reaching the target closes out immediately, including the row
			// just added.
			target: 10,
			min:    5,
			max:    20,
			sizes:  []int64{4, 4, 3},
			shards: [][]int64{{4, 4, 3}},
		},
		{
			// Adding the next row would blow past the maximum while the
			// total already meets the minimum: close out, the pending row
			// opens the next shard.
			target: 25,
			min:    5,
			max:    20,
			sizes:  []int64{19, 3},
			shards: [][]int64{{19}, {3}},
		},
		{
			// A single row larger than the maximum is still packed.
			target: 10,
			min:    5,
			max:    20,
			sizes:  []int64{25},
			shards: [][]int64{{25}},
		},
		{
			// An oversized row rides in whatever shard is accumulating when
			// the total is still below the minimum.
			target: 30,
			min:    5,
			max:    20,
			sizes:  []int64{3, 25, 2},
			shards: [][]int64{{3, 25}, {2}},
		},
		{
			// Terminal flush happens regardless of size.
			target: 10,
			min:    5,
			max:    20,
			sizes:  []int64{1},
			shards: [][]int64{{1}},
		},
		{
			// No input, no shards.
			target: 10,
			min:    5,
			max:    20,
			sizes:  []int64{},
			shards: [][]int64{},
		},
		{
			// Back-to-back target hits.
			target: 10,
			min:    5,
			max:    20,
			sizes:  []int64{10, 6, 5, 2},
			shards: [][]int64{{10}, {6, 5}, {2}},
		},
	}
	for i, testCase := range testCases {
		actual := runPacker(t, testCase.target, testCase.min, testCase.max, testCase.sizes)
		if expected := testCase.shards; !reflect.DeepEqual(actual, expected) {
			t.Errorf("[i=%v] For sizes=%v: Expected shards=%v but actual=%v", i, testCase.sizes, expected, actual)
		}
	}
}

func TestPackerPropagatesFlushError(t *testing.T) {
	sentinel := fmt.Errorf("flush refused")
	p := newPacker(1, 0, 10, func(_ shardTask) error {
		return sentinel
	})
	if expected, actual := sentinel, p.add(domain.FileRecord{Size: 5}); actual != expected {
		t.Errorf("Expected error=%v but actual=%v", expected, actual)
	}
}
