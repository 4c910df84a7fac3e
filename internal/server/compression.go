// compression.go - gzip compression for text responses (HTML, JSON, metrics).
package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// compressionResponseWriter wraps http.ResponseWriter to compress responses.
type compressionResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

func (crw *compressionResponseWriter) Write(b []byte) (int, error) {
	return crw.writer.Write(b)
}

// CompressionMiddleware returns middleware that compresses HTTP responses.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptsCompression(r) || shouldSkipCompression(r) {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzip.NewWriter(w)
		defer gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&compressionResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

func acceptsCompression(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// shouldSkipCompression skips images (already compressed, and the file
// server sets Content-Length) and bodiless methods.
func shouldSkipCompression(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/images/")
}
