package models

const (
	AlertDesc_MirrorFailures   = "Mirror Fetch Failures"
	AlertDesc_PendingEvictions = "Pending Recognitions Evicted"
)

const (
	AlertFmt_MirrorFailures   string = "source %s (topic %s) failed %d consecutive polls:\n%v"
	AlertFmt_PendingEvictions string = "evicted %d pending recognition instances, %d still pending"
)
