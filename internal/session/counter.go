package session

import "github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"

// byteCounter turns cumulative per-phase byte counts into increments.
type byteCounter struct {
	last map[int]int64
}

func newByteCounter() *byteCounter {
	return &byteCounter{last: make(map[int]int64)}
}

// delta returns the bytes added since the previous event of the same
// phase. A drop means yt-dlp started another file in that phase.
func (c *byteCounter) delta(evt models.ProgressEvent) int64 {
	prev := c.last[evt.PhaseIndex]
	c.last[evt.PhaseIndex] = evt.DownloadedBytes
	if evt.DownloadedBytes < prev {
		return evt.DownloadedBytes
	}
	return evt.DownloadedBytes - prev
}
