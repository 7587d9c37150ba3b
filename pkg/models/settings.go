package models

// AppearanceSettings is the flat preference record of the desktop shell.
type AppearanceSettings struct {
	Orbs       bool   `json:"orbs"`
	Particles  bool   `json:"particles"`
	Glow       bool   `json:"glow"`
	Glass      bool   `json:"glass"`
	Scanlines  bool   `json:"scanlines"`
	Grain      bool   `json:"grain"`
	Animations bool   `json:"animations"`
	Accent     string `json:"accent"`
	Theme      string `json:"theme"`
}

// DefaultAppearanceSettings returns the defaults stored values merge over.
func DefaultAppearanceSettings() AppearanceSettings {
	return AppearanceSettings{
		Orbs:       true,
		Particles:  false,
		Glow:       true,
		Glass:      true,
		Scanlines:  false,
		Grain:      false,
		Animations: true,
		Accent:     "cyan",
		Theme:      "abyss",
	}
}

// Accents and themes the shell knows how to render.
var (
	Accents = []string{"cyan", "violet", "amber", "rose", "green"}
	Themes  = []string{"abyss", "midnight", "obsidian"}
)

// ToolStatus reports whether the external binaries answer a version probe.
type ToolStatus struct {
	YtDlp      bool   `json:"ytdlp"`
	FFmpeg     bool   `json:"ffmpeg"`
	YtDlpPath  string `json:"ytdlp_path"`
	FFmpegPath string `json:"ffmpeg_path"`
}

// Missing lists the binaries that failed the probe.
func (t ToolStatus) Missing() []string {
	var missing []string
	if !t.YtDlp {
		missing = append(missing, "yt-dlp")
	}
	if !t.FFmpeg {
		missing = append(missing, "ffmpeg")
	}
	return missing
}
