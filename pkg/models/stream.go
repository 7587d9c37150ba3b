package models

import "strings"

// StreamInfo is the metadata document yt-dlp prints for a single URL.
// It is immutable once fetched.
type StreamInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Duration    float64       `json:"duration"`
	Uploader    string        `json:"uploader"`
	Channel     string        `json:"channel"`
	ViewCount   int64         `json:"view_count"`
	Thumbnail   string        `json:"thumbnail"`
	WebpageURL  string        `json:"webpage_url"`
	OriginalURL string        `json:"original_url"`
	Extractor   string        `json:"extractor,omitempty"`
	Formats     []FormatEntry `json:"formats"`
}

// SourceURL returns the canonical URL to hand back to the downloader.
func (s *StreamInfo) SourceURL() string {
	if s.WebpageURL != "" {
		return s.WebpageURL
	}
	return s.OriginalURL
}

// Author returns the uploader, falling back to the channel name.
func (s *StreamInfo) Author() string {
	if s.Uploader != "" {
		return s.Uploader
	}
	return s.Channel
}

// FormatEntry is one encoding option from the extractor's formats array.
type FormatEntry struct {
	FormatID       string  `json:"format_id"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	FileSize       float64 `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
	Ext            string  `json:"ext"`
}

// CodecNone is the marker yt-dlp uses for an absent stream.
const CodecNone = "none"

func codecPresent(codec string) bool {
	c := strings.TrimSpace(codec)
	return c != "" && c != CodecNone
}

// HasVideo reports whether the entry carries a video stream.
func (f FormatEntry) HasVideo() bool {
	return codecPresent(f.VCodec)
}

// HasAudio reports whether the entry carries an audio stream.
func (f FormatEntry) HasAudio() bool {
	return codecPresent(f.ACodec)
}

// IsVideoOnly reports a video stream without audio.
func (f FormatEntry) IsVideoOnly() bool {
	return f.HasVideo() && !f.HasAudio()
}

// IsAudioOnly reports an audio stream without video.
func (f FormatEntry) IsAudioOnly() bool {
	return f.HasAudio() && !f.HasVideo()
}

// Size returns the exact file size, else the estimate, else 0.
func (f FormatEntry) Size() int64 {
	if f.FileSize > 0 {
		return int64(f.FileSize)
	}
	if f.FileSizeApprox > 0 {
		return int64(f.FileSizeApprox)
	}
	return 0
}

// SelectedFormat is the presentation view of a chosen format.
type SelectedFormat struct {
	Label         string `json:"label"`
	FormatID      string `json:"id"`
	CompatWarning bool   `json:"compat_warning"`
	Height        int    `json:"height,omitempty"`
	Codec         string `json:"codec,omitempty"`
}
