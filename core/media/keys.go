package media

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const maxKeyNameLen = 200

// NewObjectKey builds the key an upload is stored under:
// "<projectId>/<unixMillis>-<name>". Timestamp prefixes already present on
// the client's filename are dropped first, so a re-uploaded object never
// ends up with two of them.
func NewObjectKey(projectID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", projectID, now.UnixMilli(), keyName(filename))
}

func keyName(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	name = timestampPrefixes.ReplaceAllString(name, "")
	name = unsafeKeyChars.ReplaceAllString(name, "_")
	if len(name) > maxKeyNameLen {
		name = name[:maxKeyNameLen]
	}
	if name == "" || name == "." || name == "/" {
		return "audio"
	}
	return name
}

// IsAudioKey reports whether the key ends in a supported audio extension.
func IsAudioKey(key string) bool {
	return audioExtension.MatchString(key)
}
