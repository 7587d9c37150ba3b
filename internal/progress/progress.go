package progress

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// Template is handed to yt-dlp's --progress-template. yt-dlp strips the
// "download:" selector and prints the rest once per progress tick.
const Template = "download:PROG" +
	"|%(progress.status)s" +
	"|%(progress.downloaded_bytes)s" +
	"|%(progress.total_bytes)s" +
	"|%(progress.total_bytes_estimate)s" +
	"|%(progress.speed)s" +
	"|%(progress.eta)s"

const (
	structuredPrefix = "PROG|"
	fieldCount       = 7
	mebibyte         = 1048576
	minPathLen       = 3
	statusFinished   = "finished"
)

var (
	mergeMarkers = []string{"[Merger]", "[ffmpeg]"}

	// diagnosticPrefixes never announce the final path.
	diagnosticPrefixes = []string{"[", "PROG", "WARNING:", "ERROR:", "Deleting ", "Downloading "}
)

// Sample is one decoded structured progress line.
type Sample struct {
	Status     string
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        int64
}

// Fraction is downloaded/total clamped to [0,1]; 0 while the size is unknown.
func (s Sample) Fraction() float64 {
	return Fraction(s.Downloaded, s.Total)
}

// ParseStructured decodes a "PROG|..." line. ok is false for anything
// else, including structured lines with fewer than seven fields.
func ParseStructured(line string) (Sample, bool) {
	if !strings.HasPrefix(line, structuredPrefix) {
		return Sample{}, false
	}
	p := strings.Split(line, "|")
	if len(p) < fieldCount {
		return Sample{}, false
	}

	total := parseInt(p[3])
	if total == 0 {
		total = parseInt(p[4])
	}

	return Sample{
		Status:     strings.TrimSpace(p[1]),
		Downloaded: parseInt(p[2]),
		Total:      total,
		Speed:      parseFloat(p[5]),
		ETA:        parseInt(p[6]),
	}, true
}

// IsMergeMarker reports a muxer hand-off line.
func IsMergeMarker(line string) bool {
	for _, m := range mergeMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// IsPathLine reports whether line can be the --print after_move:filepath output.
func IsPathLine(line string) bool {
	if len(line) <= minPathLen {
		return false
	}
	for _, p := range diagnosticPrefixes {
		if strings.HasPrefix(line, p) {
			return false
		}
	}
	return true
}

// Fraction clamps downloaded/total into [0,1].
func Fraction(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(downloaded) / float64(total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// FormatSpeed renders bytes/sec; MB/s from 1 MiB/s upward, KB/s below.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return ""
	}
	if bytesPerSec >= mebibyte {
		return fmt.Sprintf("%.1f MB/s", bytesPerSec/mebibyte)
	}
	return fmt.Sprintf("%d KB/s", int64(math.Round(bytesPerSec/1024)))
}

// FormatETA renders the remaining seconds, empty when not positive.
func FormatETA(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("ETA  %ds", seconds)
}

// yt-dlp prints "NA" for unknown fields and floats for some counters.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func phaseLabel(index int) string {
	switch index {
	case models.PhaseAudio:
		return models.PhaseLabelAudio
	case models.PhaseMerge:
		return models.PhaseLabelMerge
	default:
		return models.PhaseLabelVideo
	}
}
