package models

import (
	"encoding/json"
	"testing"
)

func TestFormatEntryStreams(t *testing.T) {
	tests := []struct {
		name      string
		entry     FormatEntry
		video     bool
		audio     bool
		videoOnly bool
		audioOnly bool
	}{
		{"video only", FormatEntry{VCodec: "avc1.640028", ACodec: "none"}, true, false, true, false},
		{"audio only", FormatEntry{VCodec: "none", ACodec: "mp4a.40.2"}, false, true, false, true},
		{"muxed", FormatEntry{VCodec: "avc1", ACodec: "mp4a"}, true, true, false, false},
		{"missing codecs", FormatEntry{}, false, false, false, false},
		{"blank codec", FormatEntry{VCodec: "  ", ACodec: "opus"}, false, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.HasVideo(); got != tt.video {
				t.Errorf("HasVideo() = %v, want %v", got, tt.video)
			}
			if got := tt.entry.HasAudio(); got != tt.audio {
				t.Errorf("HasAudio() = %v, want %v", got, tt.audio)
			}
			if got := tt.entry.IsVideoOnly(); got != tt.videoOnly {
				t.Errorf("IsVideoOnly() = %v, want %v", got, tt.videoOnly)
			}
			if got := tt.entry.IsAudioOnly(); got != tt.audioOnly {
				t.Errorf("IsAudioOnly() = %v, want %v", got, tt.audioOnly)
			}
		})
	}
}

func TestFormatEntrySize(t *testing.T) {
	if got := (FormatEntry{FileSize: 1000, FileSizeApprox: 2000}).Size(); got != 1000 {
		t.Errorf("exact size should win, got %d", got)
	}
	if got := (FormatEntry{FileSizeApprox: 2000}).Size(); got != 2000 {
		t.Errorf("expected estimate, got %d", got)
	}
	if got := (FormatEntry{}).Size(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestStreamInfoDecode(t *testing.T) {
	raw := `{
		"title": "Sample",
		"duration": 185.4,
		"channel": "Chan",
		"view_count": 42,
		"original_url": "https://example.com/x",
		"formats": [{"format_id": "137", "vcodec": "avc1", "acodec": "none", "height": 1080, "tbr": 4400.5, "filesize": null}]
	}`

	var info StreamInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if info.Author() != "Chan" {
		t.Errorf("Author() = %q, want channel fallback", info.Author())
	}
	if info.SourceURL() != "https://example.com/x" {
		t.Errorf("SourceURL() = %q", info.SourceURL())
	}
	if len(info.Formats) != 1 || info.Formats[0].Height != 1080 || info.Formats[0].FileSize != 0 {
		t.Errorf("unexpected formats: %+v", info.Formats)
	}

	info.WebpageURL = "https://example.com/watch"
	info.Uploader = "Up"
	if info.SourceURL() != "https://example.com/watch" || info.Author() != "Up" {
		t.Errorf("webpage_url and uploader should take precedence")
	}
}

func TestDownloadJobMode(t *testing.T) {
	job := DownloadJob{}
	if job.Mode() != "video" {
		t.Errorf("Mode() = %q, want video", job.Mode())
	}
	job.AudioOnly = true
	if job.Mode() != "audio" {
		t.Errorf("Mode() = %q, want audio", job.Mode())
	}
}

func TestToolStatusMissing(t *testing.T) {
	if got := (ToolStatus{YtDlp: true, FFmpeg: true}).Missing(); len(got) != 0 {
		t.Errorf("expected nothing missing, got %v", got)
	}
	got := ToolStatus{}.Missing()
	if len(got) != 2 || got[0] != "yt-dlp" || got[1] != "ffmpeg" {
		t.Errorf("Missing() = %v", got)
	}
}

func TestDefaultAppearanceSettings(t *testing.T) {
	s := DefaultAppearanceSettings()
	if s.Accent != "cyan" || s.Theme != "abyss" {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if !s.Orbs || s.Particles || !s.Glow || !s.Glass || s.Scanlines || s.Grain || !s.Animations {
		t.Errorf("unexpected toggle defaults: %+v", s)
	}
}
