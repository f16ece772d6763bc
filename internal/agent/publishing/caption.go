package publishing

import (
	"strings"

	"github.com/reels-agent/internal/models"
)

// sourceNamePlaceholder is replaced in the account's caption template
const sourceNamePlaceholder = "{source_name}"

// BuildCaption merges the reel's original caption, the account's caption
// template and an attribution line into the publish caption.
func BuildCaption(reel *models.Reel, source *models.Source, settings *models.Settings) string {
	var parts []string

	if caption := strings.TrimSpace(reel.Caption); caption != "" {
		parts = append(parts, caption)
	}

	if settings != nil && settings.CaptionTemplate != "" {
		line := settings.CaptionTemplate
		if source != nil {
			line = strings.ReplaceAll(line, sourceNamePlaceholder, source.Name)
		}
		parts = append(parts, line)
	}

	if source != nil {
		handle := strings.TrimPrefix(source.InstagramHandle, "@")
		if handle != "" {
			parts = append(parts, "Credit: @"+handle)
		}
		if tag := hashtag(source.Name); tag != "" {
			parts = append(parts, tag)
		}
	}

	return strings.Join(parts, "\n\n")
}

// hashtag turns a source name into a single hashtag, e.g.
// "Soneva Fushi" -> "#SonevaFushi"
func hashtag(name string) string {
	compact := strings.ReplaceAll(strings.TrimSpace(name), " ", "")
	if compact == "" {
		return ""
	}
	return "#" + compact
}
