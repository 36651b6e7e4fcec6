package jxa

import _ "embed"

//go:embed scripts/set_queue.js
var setQueueScript string

//go:embed scripts/play.js
var playScript string
