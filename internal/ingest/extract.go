package ingest

import (
	"strconv"
	"strings"

	"garagewatch/internal/metadata"
)

// Extraction is what a message contributes to the pipeline.
type Extraction struct {
	Locator string
	Record  metadata.Record
}

// Extract reads the locator and classification fields from msg. ok is false
// when the message carries no image locator.
func Extract(msg Message) (ex Extraction, ok bool) {
	ex.Record = metadata.Record{
		ItemID:     msg.ID,
		ObservedAt: msg.Timestamp,
	}
	for _, embed := range msg.Embeds {
		for _, f := range embed.Fields {
			name := strings.ToLower(strings.TrimSpace(f.Name))
			value := strings.TrimSpace(f.Value)
			if name == "" || value == "" {
				continue
			}
			switch name {
			case "status":
				ex.Record.ClassificationLabel = value
			case "confidence":
				c := parseConfidence(value)
				ex.Record.Confidence = &c
			case "occupancy", "garage occupancy":
				ex.Record.OccupancyState = value
			}
		}
	}
	ex.Locator = locatorOf(msg)
	return ex, ex.Locator != ""
}

// parseConfidence accepts "97", "97%" or "97.5 %". Unparseable text yields 0.
func parseConfidence(value string) float64 {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "%"))
	c, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return c
}

func locatorOf(msg Message) string {
	for _, embed := range msg.Embeds {
		if u := strings.TrimSpace(embed.ThumbnailURL); u != "" {
			return u
		}
	}
	for _, embed := range msg.Embeds {
		if u := strings.TrimSpace(embed.ImageURL); u != "" {
			return u
		}
	}
	for _, att := range msg.Attachments {
		if u := strings.TrimSpace(att.URL); u != "" {
			return u
		}
	}
	return ""
}
