package formats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// FallbackAudio is the format expression used when the source lists no
// audio-only stream.
const FallbackAudio = "bestaudio/best"

// CompatWarningText is shown when a selected stream may not decode on
// common mobile players.
const CompatWarningText = "This codec (VP9 / AV1 at 4K+) may not play on all Android devices."

const (
	gibibyte        = 1073741824
	mebibyte        = 1048576
	compatMinHeight = 2160
	defaultAudioExt = "m4a"
)

var resolutionNames = map[int]string{
	4320: "8K",
	2160: "4K / UHD",
	1440: "2K / QHD",
	1080: "Full HD",
	720:  "HD",
	480:  "SD",
	360:  "360p",
	240:  "240p",
	144:  "144p",
}

var compatCodecs = []string{"av01", "av1", "vp9", "vp09"}

// Selection is the user-facing choice list derived from a StreamInfo.
type Selection struct {
	Video       []models.SelectedFormat `json:"video"`
	Audio       []models.SelectedFormat `json:"audio"`
	BestAudioID string                  `json:"best_audio_id"`
}

// Select keeps the highest-bitrate video-only entry per height (falling
// back to any entry with video when none is video-only) and every
// audio-only entry ordered by bitrate.
func Select(info *models.StreamInfo) Selection {
	var formats []models.FormatEntry
	if info != nil {
		formats = info.Formats
	}

	byHeight := bestPerHeight(formats, models.FormatEntry.IsVideoOnly)
	if len(byHeight) == 0 {
		byHeight = bestPerHeight(formats, models.FormatEntry.HasVideo)
	}

	heights := make([]int, 0, len(byHeight))
	for h := range byHeight {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	sel := Selection{
		Video: make([]models.SelectedFormat, 0, len(heights)),
		Audio: []models.SelectedFormat{},
	}
	for _, h := range heights {
		f := byHeight[h]
		sel.Video = append(sel.Video, models.SelectedFormat{
			Label:         ResolutionLabel(h, f.FPS, FormatSize(f.Size())),
			FormatID:      f.FormatID,
			CompatWarning: NeedsCompatWarning(h, f.VCodec),
			Height:        h,
			Codec:         f.VCodec,
		})
	}

	var audio []models.FormatEntry
	for _, f := range formats {
		if f.IsAudioOnly() {
			audio = append(audio, f)
		}
	}
	sort.SliceStable(audio, func(i, j int) bool {
		return audio[i].ABR > audio[j].ABR
	})
	for _, f := range audio {
		sel.Audio = append(sel.Audio, models.SelectedFormat{
			Label:    AudioLabel(f),
			FormatID: f.FormatID,
			Codec:    f.ACodec,
		})
	}

	sel.BestAudioID = FallbackAudio
	if len(audio) > 0 {
		sel.BestAudioID = audio[0].FormatID
	}
	return sel
}

// bestPerHeight keeps, for each non-zero height, the first entry with the
// strictly highest TBR among those accepted by keep.
func bestPerHeight(formats []models.FormatEntry, keep func(models.FormatEntry) bool) map[int]models.FormatEntry {
	best := make(map[int]models.FormatEntry)
	for _, f := range formats {
		if !keep(f) || f.Height <= 0 {
			continue
		}
		cur, ok := best[f.Height]
		if !ok || f.TBR > cur.TBR {
			best[f.Height] = f
		}
	}
	return best
}

// ResolutionLabel renders e.g. "Full HD  (1080p)  60fps  ~850 MB".
// size is an already formatted size string, or empty. Heights whose
// friendly name is the plain "<h>p" form are not repeated.
func ResolutionLabel(height int, fps float64, size string) string {
	tech := fmt.Sprintf("%dp", height)

	var b strings.Builder
	if name, ok := resolutionNames[height]; ok && name != tech {
		fmt.Fprintf(&b, "%s  (%s)", name, tech)
	} else {
		b.WriteString(tech)
	}
	if fps > 1 {
		fmt.Fprintf(&b, "  %dfps", int64(math.Round(fps)))
	}
	if size != "" {
		fmt.Fprintf(&b, "  ~%s", size)
	}
	return b.String()
}

// AudioLabel renders e.g. "160 kbps  WEBM  ~3 MB".
func AudioLabel(f models.FormatEntry) string {
	ext := f.Ext
	if ext == "" {
		ext = defaultAudioExt
	}
	label := strings.ToUpper(ext)
	if abr := int64(math.Round(f.ABR)); abr > 0 {
		label = fmt.Sprintf("%d kbps  %s", abr, label)
	}
	if size := FormatSize(f.Size()); size != "" {
		label += "  ~" + size
	}
	return label
}

// NeedsCompatWarning flags 4K-and-up VP9/AV1 streams.
func NeedsCompatWarning(height int, vcodec string) bool {
	if height < compatMinHeight {
		return false
	}
	vc := strings.ToLower(vcodec)
	for _, c := range compatCodecs {
		if strings.Contains(vc, c) {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count as GB with one decimal, or whole MB/KB.
func FormatSize(bytes int64) string {
	switch {
	case bytes <= 0:
		return ""
	case bytes >= gibibyte:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gibibyte)
	case bytes >= mebibyte:
		return fmt.Sprintf("%d MB", int64(math.Round(float64(bytes)/mebibyte)))
	default:
		return fmt.Sprintf("%d KB", int64(math.Round(float64(bytes)/1024)))
	}
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(secs float64) string {
	if secs <= 0 || math.IsNaN(secs) {
		return "0:00"
	}
	total := int64(secs)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSpec builds the -f expression for a chosen entry. Audio mode
// downloads the entry alone; video mode pairs it with the best audio.
func FormatSpec(chosen models.SelectedFormat, audioMode bool, bestAudioID string) string {
	if audioMode {
		return chosen.FormatID
	}
	if bestAudioID == "" {
		bestAudioID = FallbackAudio
	}
	return chosen.FormatID + "+" + bestAudioID
}

// Pick returns the entry at index in the video or audio list.
func (s Selection) Pick(index int, audioMode bool) (models.SelectedFormat, bool) {
	list := s.Video
	if audioMode {
		list = s.Audio
	}
	if index < 0 || index >= len(list) {
		return models.SelectedFormat{}, false
	}
	return list[index], true
}
