package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"TrackShelf/logger"
	"TrackShelf/storage"
)

// UpstreamError is returned when the storage service answered a proxied
// request with something other than audio. Status is what the client should
// get.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

// WriteObject writes an opened object. Range requests are honoured when the
// body is seekable.
func WriteObject(w http.ResponseWriter, r *http.Request, obj *storage.Object, diag Diagnostics, opts Options) {
	h := w.Header()
	h.Set("Content-Type", ContentTypeFor(obj.Key))
	h.Set("Cache-Control", NoStore)
	h.Set("Accept-Ranges", "bytes")
	diag.apply(h)
	opts.apply(h, obj.Key)

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		// ServeContent sets Content-Length and answers Range with 206/416
		http.ServeContent(w, r, "", obj.ModTime, rs)
		return
	}

	h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead || obj.Body == nil {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		logger.Warn("write object body failed",
			logger.String("key", obj.Key),
			logger.ErrorField(err))
	}
}

// Redirect sends the client to a signed URL. A HEAD probe of the URL is made
// first and reported in X-Probe-* headers; it never changes the response.
func Redirect(w http.ResponseWriter, r *http.Request, client *http.Client, signedURL string, probeTimeout time.Duration, diag Diagnostics) {
	status, contentType := probe(r.Context(), client, signedURL, probeTimeout)

	h := w.Header()
	h.Set("Cache-Control", NoStore)
	h.Set(HeaderProbeStatus, status)
	if contentType != "" {
		h.Set(HeaderProbeType, contentType)
	}
	diag.apply(h)
	http.Redirect(w, r, signedURL, http.StatusFound)
}

func probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) (string, string) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "error", ""
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("signed url probe failed", logger.ErrorField(err))
		return "error", ""
	}
	resp.Body.Close()
	return strconv.Itoa(resp.StatusCode), resp.Header.Get("Content-Type")
}

// Proxy streams the object behind signedURL to the client. For playback the
// client's Range header is forwarded and the upstream 200/206 mirrored; a 416
// is passed through with an empty body. Downloads always fetch the whole
// object. Nothing is written when an *UpstreamError is returned.
func Proxy(w http.ResponseWriter, r *http.Request, client *http.Client, signedURL, key string, diag Diagnostics, opts Options) error {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, signedURL, nil)
	if err != nil {
		return &UpstreamError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	if rng := r.Header.Get("Range"); rng != "" && !opts.Download {
		req.Header.Set("Range", rng)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &UpstreamError{Status: http.StatusBadGateway, Message: "storage request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	h := w.Header()
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		cr := resp.Header.Get("Content-Range")
		if cr == "" {
			cr = "bytes */0"
		}
		h.Set("Content-Range", cr)
		h.Set("Cache-Control", NoStore)
		diag.apply(h)
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	upstreamType := resp.Header.Get("Content-Type")
	if isErrorPage(upstreamType) {
		logger.Warn("storage returned an error page",
			logger.String("key", key),
			logger.Int("status", resp.StatusCode),
			logger.String("contentType", upstreamType),
			logger.String("body", snippet(resp.Body)))
		return &UpstreamError{Status: http.StatusBadGateway, Message: "storage returned an error page, not a file"}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		status := resp.StatusCode
		if status >= 500 || status < 400 {
			status = http.StatusBadGateway
		}
		return &UpstreamError{Status: status, Message: fmt.Sprintf("storage returned %d: %s", resp.StatusCode, snippet(resp.Body))}
	}

	contentType := upstreamType
	if contentType == "" || strings.Contains(contentType, "octet-stream") {
		contentType = ContentTypeFor(key)
	}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", NoStore)
	if !opts.Download {
		h.Set("Accept-Ranges", "bytes")
	}
	if resp.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		h.Set("Content-Range", cr)
	}
	diag.apply(h)
	opts.apply(h, key)

	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn("proxy copy interrupted",
			logger.String("key", key),
			logger.ErrorField(err))
	}
	return nil
}

func isErrorPage(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "text/html")
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 200))
	return strings.TrimSpace(string(b))
}
