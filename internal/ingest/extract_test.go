package ingest

import (
	"testing"
	"time"
)

func TestExtract(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		msg        Message
		wantOK     bool
		locator    string
		label      string
		confidence *float64
		occupancy  string
	}{
		{
			name: "thumbnail with fields",
			msg: Message{ID: 1, Timestamp: ts, Embeds: []Embed{{
				Fields: []Field{
					{Name: " Status ", Value: " open "},
					{Name: "Confidence", Value: "97%"},
					{Name: "Occupancy", Value: "occupied"},
				},
				ThumbnailURL: "https://cdn/a.png",
				ImageURL:     "https://cdn/b.png",
			}}},
			wantOK: true, locator: "https://cdn/a.png", label: "open", confidence: f(97), occupancy: "occupied",
		},
		{
			name: "image fallback",
			msg: Message{ID: 2, Embeds: []Embed{
				{Fields: []Field{{Name: "status", Value: "closed"}}},
				{ImageURL: "https://cdn/b.jpg"},
			}},
			wantOK: true, locator: "https://cdn/b.jpg", label: "closed",
		},
		{
			name:   "attachment fallback",
			msg:    Message{ID: 3, Attachments: []Attachment{{URL: "https://cdn/c.gif"}}},
			wantOK: true, locator: "https://cdn/c.gif",
		},
		{
			name: "thumbnail in later embed wins over image",
			msg: Message{ID: 4, Embeds: []Embed{
				{ImageURL: "https://cdn/img.jpg"},
				{ThumbnailURL: "https://cdn/thumb.jpg"},
			}},
			wantOK: true, locator: "https://cdn/thumb.jpg",
		},
		{
			name: "unparseable confidence",
			msg: Message{ID: 5, Embeds: []Embed{{
				Fields:       []Field{{Name: "confidence", Value: "high"}},
				ThumbnailURL: "https://cdn/d.jpg",
			}}},
			wantOK: true, locator: "https://cdn/d.jpg", confidence: f(0),
		},
		{
			name: "fractional confidence with space",
			msg: Message{ID: 6, Embeds: []Embed{{
				Fields:       []Field{{Name: "confidence", Value: "88.5 %"}},
				ThumbnailURL: "https://cdn/e.jpg",
			}}},
			wantOK: true, locator: "https://cdn/e.jpg", confidence: f(88.5),
		},
		{
			name: "no locator",
			msg: Message{ID: 7, Embeds: []Embed{{
				Fields: []Field{{Name: "status", Value: "open"}},
			}}},
			wantOK: false, label: "open",
		},
		{
			name: "empty values ignored",
			msg: Message{ID: 8, Embeds: []Embed{{
				Fields:       []Field{{Name: "status", Value: "  "}, {Name: "", Value: "x"}},
				ThumbnailURL: "https://cdn/g.jpg",
			}}},
			wantOK: true, locator: "https://cdn/g.jpg",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, ok := Extract(tc.msg)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ex.Locator != tc.locator {
				t.Fatalf("locator = %q, want %q", ex.Locator, tc.locator)
			}
			rec := ex.Record
			if rec.ItemID != tc.msg.ID || !rec.ObservedAt.Equal(tc.msg.Timestamp) {
				t.Fatalf("unexpected identity %#v", rec)
			}
			if rec.ClassificationLabel != tc.label || rec.OccupancyState != tc.occupancy {
				t.Fatalf("unexpected fields %#v", rec)
			}
			switch {
			case tc.confidence == nil && rec.Confidence != nil:
				t.Fatalf("confidence = %v, want nil", *rec.Confidence)
			case tc.confidence != nil && (rec.Confidence == nil || *rec.Confidence != *tc.confidence):
				t.Fatalf("confidence = %v, want %v", rec.Confidence, *tc.confidence)
			}
		})
	}
}

func f(v float64) *float64 { return &v }
