package api

import "time"

// timeNow is overridden in tests for deterministic envelope timestamps.
var timeNow = time.Now
