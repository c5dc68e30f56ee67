// Package delivery writes resolved audio objects to HTTP clients: directly
// from the object body, as a redirect to a signed URL, or by proxying the
// signed URL with range support.
package delivery

import (
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// NoStore is the Cache-Control value of every audio response.
const NoStore = "no-store, no-cache, max-age=0, must-revalidate"

// Diagnostic response headers.
const (
	HeaderResolvedKey     = "X-Resolved-Key"
	HeaderResolution      = "X-Resolution"
	HeaderCandidatesTried = "X-Candidates-Tried"
	HeaderProbeStatus     = "X-Probe-Status"
	HeaderProbeType       = "X-Probe-Content-Type"
)

const maxFilenameLen = 200

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	dotRun              = regexp.MustCompile(`\.{2,}`)
	audioExtensions     = []string{".mp3", ".wav", ".m4a"}
)

// ContentTypeFor maps a key's extension to the content type browsers expect.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// SanitizeFilename makes name safe for a Content-Disposition header and
// guarantees an audio extension.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = dotRun.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "audio"
	}
	if !hasAudioExtension(name) {
		if len(name) > maxFilenameLen-len(".mp3") {
			name = name[:maxFilenameLen-len(".mp3")]
		}
		return name + ".mp3"
	}
	if len(name) > maxFilenameLen {
		ext := name[len(name)-4:]
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}

func hasAudioExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// DisplayName picks the download filename: an explicit override, else the
// track title with the key's extension, else the key's last segment.
func DisplayName(override, title, key string) string {
	if s := strings.TrimSpace(override); s != "" {
		return SanitizeFilename(s)
	}
	if s := strings.TrimSpace(title); s != "" {
		return SanitizeFilename(s + strings.ToLower(path.Ext(key)))
	}
	return SanitizeFilename(path.Base(key))
}

// Diagnostics describes how a request's key was resolved.
type Diagnostics struct {
	ResolvedKey     string
	Resolution      string
	CandidatesTried int
}

func (d Diagnostics) apply(h http.Header) {
	if d.ResolvedKey != "" {
		h.Set(HeaderResolvedKey, d.ResolvedKey)
	}
	if d.Resolution != "" {
		h.Set(HeaderResolution, d.Resolution)
	}
	if d.CandidatesTried > 0 {
		h.Set(HeaderCandidatesTried, strconv.Itoa(d.CandidatesTried))
	}
}

// Options controls the response shape.
type Options struct {
	Download bool
	// Filename is the attachment name; used only for downloads.
	Filename string
}

func (o Options) apply(h http.Header, key string) {
	if !o.Download {
		return
	}
	name := o.Filename
	if name == "" {
		name = DisplayName("", "", key)
	}
	h.Set("Content-Disposition", `attachment; filename="`+name+`"`)
}
