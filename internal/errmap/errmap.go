// Package errmap turns raw yt-dlp / ffmpeg error text into messages a
// person can act on. Rules are data, evaluated in order, first match wins.
package errmap

import (
	"regexp"
	"strings"
)

// Category identifies which rule matched.
type Category string

const (
	CategoryYtDlpMissing   Category = "ytdlp_missing"
	CategoryFFmpegMissing  Category = "ffmpeg_missing"
	CategoryUnsupportedURL Category = "unsupported_url"
	CategoryUnavailable    Category = "unavailable"
	CategoryRemoved        Category = "removed"
	CategoryBlocked        Category = "blocked"
	CategoryAgeRestricted  Category = "age_restricted"
	CategoryGeoBlocked     Category = "geo_blocked"
	CategoryLiveStream     Category = "live_stream"
	CategoryPlaylist       Category = "playlist"
	CategoryInvalidURL     Category = "invalid_url"
	CategoryNotFound       Category = "http_404"
	CategoryForbidden      Category = "http_403"
	CategoryRateLimited    Category = "http_429"
	CategoryTimeout        Category = "timeout"
	CategoryNetwork        Category = "network"
	CategoryDiskSpace      Category = "disk_space"
	CategoryPermission     Category = "permission_denied"
	CategoryFileExists     Category = "file_exists"
	CategoryCancelled      Category = "cancelled"
	CategoryPassthrough    Category = "passthrough"
	CategoryUnknown        Category = "unknown"
)

// Rule matches when every AllOf token and, if AnyOf is non-empty, at
// least one AnyOf token occur in the lower-cased message.
type Rule struct {
	Category Category
	AllOf    []string
	AnyOf    []string
	Message  string
}

// Matches reports whether the rule applies to an already lower-cased message.
func (r Rule) Matches(lower string) bool {
	if len(r.AllOf) == 0 && len(r.AnyOf) == 0 {
		return false
	}
	for _, tok := range r.AllOf {
		if !strings.Contains(lower, tok) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, tok := range r.AnyOf {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// Rules is ordered: tool failures first since their wrapped OS text
// ("not found") would otherwise hit the HTTP 404 rule, and HTTP codes
// ahead of the generic network rule.
var Rules = []Rule{
	{
		Category: CategoryYtDlpMissing,
		AllOf:    []string{"could not run yt-dlp"},
		Message:  "yt-dlp is not installed or cannot be found. Please run the HDMSP Toolkit.",
	},
	{
		Category: CategoryFFmpegMissing,
		AnyOf:    []string{"could not run ffmpeg", "ffmpeg not found", "ffmpeg is not installed", "ffprobe and ffmpeg not found"},
		Message:  "ffmpeg is not installed or cannot be found. Please run the HDMSP Toolkit.",
	},
	{
		Category: CategoryUnsupportedURL,
		AnyOf:    []string{"unsupported url", "no video formats found"},
		Message:  "This URL is not supported. Please check the link and try again.",
	},
	{
		Category: CategoryUnavailable,
		AnyOf:    []string{"video unavailable", "private video"},
		Message:  "This video is unavailable or private.",
	},
	{
		Category: CategoryRemoved,
		AllOf:    []string{"video has been removed"},
		Message:  "This video has been removed by the uploader.",
	},
	{
		Category: CategoryBlocked,
		AnyOf:    []string{"copyright", "blocked"},
		Message:  "This video is blocked due to copyright restrictions.",
	},
	{
		Category: CategoryAgeRestricted,
		AllOf:    []string{"age", "restricted"},
		Message:  "This video is age-restricted and cannot be downloaded.",
	},
	{
		Category: CategoryGeoBlocked,
		AnyOf:    []string{"geo", "not available in your country"},
		Message:  "This video is not available in your region.",
	},
	{
		Category: CategoryLiveStream,
		AllOf:    []string{"live", "stream"},
		Message:  "Live streams cannot be downloaded while they're still broadcasting.",
	},
	{
		Category: CategoryPlaylist,
		AllOf:    []string{"playlist"},
		Message:  "Playlist URLs are not supported. Please use a direct video link.",
	},
	{
		Category: CategoryInvalidURL,
		AllOf:    []string{"invalid", "url"},
		Message:  "Invalid URL format. Please enter a valid video link.",
	},
	{
		Category: CategoryNotFound,
		AnyOf:    []string{"http error 404", "not found"},
		Message:  "Video not found. The link may be broken or the video was deleted.",
	},
	{
		Category: CategoryForbidden,
		AnyOf:    []string{"http error 403", "forbidden"},
		Message:  "Access denied. This video may be private or region-locked.",
	},
	{
		Category: CategoryRateLimited,
		AnyOf:    []string{"http error 429", "too many requests"},
		Message:  "Too many requests. Please wait a few minutes and try again.",
	},
	{
		Category: CategoryTimeout,
		AnyOf:    []string{"timeout", "timed out"},
		Message:  "Connection timed out. Check your internet connection and try again.",
	},
	{
		Category: CategoryNetwork,
		AnyOf:    []string{"network", "connection"},
		Message:  "Network error. Please check your internet connection.",
	},
	{
		Category: CategoryDiskSpace,
		AllOf:    []string{"disk"},
		AnyOf:    []string{"full", "space"},
		Message:  "Not enough disk space. Free up some space and try again.",
	},
	{
		Category: CategoryDiskSpace,
		AnyOf:    []string{"no space left on device"},
		Message:  "Not enough disk space. Free up some space and try again.",
	},
	{
		Category: CategoryPermission,
		AnyOf:    []string{"permission denied", "access is denied"},
		Message:  "Permission denied. Check folder permissions or choose a different location.",
	},
	{
		Category: CategoryFileExists,
		AllOf:    []string{"file already exists"},
		Message:  "A file with this name already exists in the destination folder.",
	},
}

// Fallback messages
const (
	GenericMessage    = "An error occurred. Please try again."
	UnexpectedMessage = "An unexpected error occurred. Please try again."
	maxPassthroughLen = 200
)

var errorTag = regexp.MustCompile(`(?i)ERROR:\s*`)

// Match returns the first rule matching raw, if any.
func Match(raw string) (Rule, bool) {
	lower := strings.ToLower(raw)
	for _, r := range Rules {
		if r.Matches(lower) {
			return r, true
		}
	}
	return Rule{}, false
}

// Classify returns the category of raw.
func Classify(raw string) Category {
	if r, ok := Match(raw); ok {
		return r.Category
	}
	if passthrough(raw) != "" {
		return CategoryPassthrough
	}
	return CategoryUnknown
}

// Humanize maps raw tool output to a user-facing message.
func Humanize(raw string) string {
	if r, ok := Match(raw); ok {
		return r.Message
	}

	if strings.Contains(strings.ToLower(raw), "error:") {
		if cleaned := passthrough(raw); cleaned != "" {
			return cleaned
		}
		return GenericMessage
	}

	if cleaned := passthrough(raw); cleaned != "" {
		return cleaned
	}
	return UnexpectedMessage
}

// passthrough strips a leading tool error tag and returns the rest when
// it is short enough to show as-is.
func passthrough(raw string) string {
	cleaned := StripErrorTag(raw)
	if len(cleaned) == 0 || len(cleaned) >= maxPassthroughLen {
		return ""
	}
	return cleaned
}

// StripErrorTag removes the first "ERROR:" tag from a tool line.
func StripErrorTag(line string) string {
	loc := errorTag.FindStringIndex(line)
	if loc == nil {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line[:loc[0]] + line[loc[1]:])
}
