package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Older deployments stored the object key in "storage_path" and the display
// title in "name". TrackFromRow is the one place that knows about them: it
// takes a raw row (column name -> value) and returns a Track in the canonical
// shape, preferring the canonical columns when both are populated.
func TrackFromRow(row map[string]any) *Track {
	t := &Track{
		ID:        asString(row["id"]),
		ProjectID: asString(row["project_id"]),
		Title:     firstNonEmpty(asString(row["title"]), asString(row["name"])),
		BPM:       asFloatPtr(row["bpm"]),
		Key:       asStringPtr(row["key"]),
		Notes:     asStringPtr(row["notes"]),
		CreatedAt: asTime(row["created_at"]),
		UpdatedAt: asTime(row["updated_at"]),
	}
	if path := firstNonEmpty(asString(row["file_path"]), asString(row["storage_path"])); path != "" {
		t.FilePath = &path
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func asStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	if p, ok := v.(*string); ok {
		return p
	}
	s := asString(v)
	return &s
}

func asFloatPtr(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case int:
		f = float64(x)
	case *float64:
		return x
	case []byte, string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(asString(x)), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case *time.Time:
		if x != nil {
			return *x
		}
	case string, []byte:
		s := asString(x)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
