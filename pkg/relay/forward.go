package relay

import (
	"io"
	"net/http"
	"strings"
)

// Forward copies an upstream response to w: status code, content type,
// the upstream's x-amzn-* metadata headers and the body, unmodified.
// It returns the number of body bytes written.
func Forward(w http.ResponseWriter, resp *http.Response) (int64, error) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)

	for name, values := range resp.Header {
		if strings.HasPrefix(strings.ToLower(name), "x-amzn-") {
			for _, v := range values {
				w.Header().Add(name, v)
			}
		}
	}

	w.WriteHeader(resp.StatusCode)
	return io.Copy(w, resp.Body)
}

// IsSuccess reports whether an upstream status is 2xx
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
