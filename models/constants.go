package models

import "time"

const DefaultHttpWaitTime = 30 * time.Second
const DefaultTick = 10 * time.Second
const DefaultPageSize = 100
const DefaultMirrorRateLimit = 10
const DefaultMirrorQueueDepth = 100
const DefaultMaxPendingInstances = 100
const DefaultFailureStreakAlert = 3
const DefaultFanoutBuffer = 1024
