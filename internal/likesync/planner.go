package likesync

const (
	smallTableCount  = 10_000
	mediumTableCount = 100_000

	minBatchSize    = 100
	mediumBatchSize = 200
	largeBatchSize  = 500

	// Small tables are cut into roughly this many batches.
	smallTableBatches = 50
)

// BatchPlan is the contiguous range of page indices a run will process.
// StartBatch and EndBatch are inclusive.
type BatchPlan struct {
	TotalCount   int64
	BatchSize    int
	TotalBatches int
	StartBatch   int
	EndBatch     int
}

// Empty reports whether the plan selects no batches.
func (p BatchPlan) Empty() bool {
	return p.TotalCount <= 0 || p.TotalBatches == 0 || p.StartBatch > p.EndBatch
}

// Len is the number of batches in [StartBatch, EndBatch].
func (p BatchPlan) Len() int {
	if p.Empty() {
		return 0
	}
	return p.EndBatch - p.StartBatch + 1
}

// OptimalBatchSize picks the page size for a table of totalCount records.
func OptimalBatchSize(totalCount int64) int {
	switch {
	case totalCount <= smallTableCount:
		return max(minBatchSize, int(totalCount/smallTableBatches))
	case totalCount <= mediumTableCount:
		return mediumBatchSize
	default:
		return largeBatchSize
	}
}

// Plan derives the batch range for a run. A positive batchSize overrides the
// size table, a negative startBatch is clamped to 0 and a non-positive
// endBatch means "through the last batch".
func Plan(totalCount int64, batchSize int, startBatch int, endBatch int) BatchPlan {
	if batchSize <= 0 {
		batchSize = OptimalBatchSize(totalCount)
	}

	plan := BatchPlan{
		TotalCount: totalCount,
		BatchSize:  batchSize,
		StartBatch: max(0, startBatch),
		EndBatch:   -1,
	}
	if totalCount <= 0 {
		return plan
	}

	plan.TotalBatches = int((totalCount-1)/int64(batchSize) + 1)
	last := plan.TotalBatches - 1
	if endBatch > 0 {
		plan.EndBatch = min(endBatch, last)
	} else {
		plan.EndBatch = last
	}

	return plan
}
