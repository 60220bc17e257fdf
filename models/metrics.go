package models

type MetricName string

// Counts
const (
	MetricName_SignalIngested            MetricName = "signals_ingested"
	MetricName_SignalDuplicate           MetricName = "signals_duplicate"
	MetricName_SignalFailed              MetricName = "signals_failed"
	MetricName_RecognitionResolved       MetricName = "recognition_resolved"
	MetricName_RecognitionPendingEvicted MetricName = "recognition_pending_evicted"
	MetricName_MirrorFetchError          MetricName = "mirror_fetch_error"
	MetricName_MirrorPageFetched         MetricName = "mirror_page_fetched"
	MetricName_PollSuperseded            MetricName = "poll_superseded"
	MetricName_FanoutDropped             MetricName = "fanout_dropped"
)

// Distributions
const (
	MetricName_PollBatchSize MetricName = "poll_batch_size"
)

// Gauges
const (
	MetricName_RecognitionPending MetricName = "recognition_pending"
	MetricName_SignalQueueDepth   MetricName = "signal_queue_depth"
)

const MetricsCallerName = "go-signals"
