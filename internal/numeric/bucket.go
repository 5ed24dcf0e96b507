package numeric

import "fmt"

// Rollup intervals in seconds.
const (
	OneHour int64 = 3600
	OneDay  int64 = 86400
)

// BucketStart returns the most recent interval boundary at or before ts.
func BucketStart(ts, interval int64) int64 {
	return ts - ts%interval
}

// BucketBounds returns the inclusive [from, to] bounds of the bucket
// containing ts. to = from + interval - 1.
func BucketBounds(ts, interval int64) (from, to int64) {
	from = BucketStart(ts, interval)
	to = from + interval - 1
	return from, to
}

// BucketID builds the storage identity of a bucket: entityID + "-" + from + to.
func BucketID(entityID string, from, to int64) string {
	return fmt.Sprintf("%s-%d%d", entityID, from, to)
}
