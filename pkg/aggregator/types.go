package aggregator

// PercentileSnapshot is a point-in-time view of an endpoint's latency window.
// All latencies are in milliseconds.
type PercentileSnapshot struct {
	P50   int64   `json:"p50"`
	P95   int64   `json:"p95"`
	P99   int64   `json:"p99"`
	Avg   float64 `json:"avg"`
	Max   int64   `json:"max"`
	Min   int64   `json:"min"`
	Count int     `json:"count"`
}

// EndpointSummary combines the counters and percentiles of one endpoint.
type EndpointSummary struct {
	Endpoint      string  `json:"endpoint"`
	TotalCount    int64   `json:"totalCount"`
	ErrorCount    int64   `json:"errorCount"`
	TotalLatency  int64   `json:"totalLatency"`
	AvgLatency    float64 `json:"avgLatency"`
	MaxLatency    int64   `json:"maxLatency"`
	MinLatency    int64   `json:"minLatency"`
	ErrorRate     float64 `json:"errorRate"`
	P50           int64   `json:"p50"`
	P95           int64   `json:"p95"`
	P99           int64   `json:"p99"`
	UniqueCallers uint64  `json:"uniqueCallers"`
}

// Bucket is one latency band of the distribution. Upper is exclusive;
// an Upper of -1 marks the open-ended band.
type Bucket struct {
	Label string `json:"label"`
	Lower int64  `json:"lower"`
	Upper int64  `json:"upper"`
	Count int    `json:"count"`
}

func (b Bucket) contains(v int64) bool {
	return v >= b.Lower && (b.Upper < 0 || v < b.Upper)
}

func newBuckets() []Bucket {
	return []Bucket{
		{Label: "0-100ms", Lower: 0, Upper: 100},
		{Label: "100-500ms", Lower: 100, Upper: 500},
		{Label: "500ms-1s", Lower: 500, Upper: 1000},
		{Label: "1s+", Lower: 1000, Upper: -1},
	}
}
