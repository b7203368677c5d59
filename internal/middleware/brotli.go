package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

type BrotliConfig struct {
	Quality   int
	Skipper   func(c *gin.Context) bool
	MinLength int
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// brotliWriter buffers the body until MinLength bytes are seen, then
// switches to compressed output for the rest of the response.
type brotliWriter struct {
	gin.ResponseWriter
	writer     *brotli.Writer
	buf        []byte
	minLength  int
	compressed bool
	skipped    bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.skipped {
		return bw.ResponseWriter.Write(data)
	}
	if bw.compressed {
		return bw.writer.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}

	// Already-compressed payloads (xlsx is a zip) are passed through.
	if alreadyCompressed(bw.Header().Get("Content-Type")) {
		bw.skipped = true
	} else {
		bw.compressed = true
		bw.Header().Set("Content-Encoding", "br")
		bw.Header().Del("Content-Length")
	}
	if err := bw.drain(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush forwards buffered bytes and flushes the underlying writer. Once an
// uncompressed response has been flushed its headers are out, so the rest
// of it stays uncompressed.
func (bw *brotliWriter) Flush() {
	_ = bw.drain()
	if bw.compressed {
		_ = bw.writer.Flush()
	} else {
		bw.skipped = true
	}
	bw.ResponseWriter.Flush()
}

// drain writes whatever is buffered through the active output path.
func (bw *brotliWriter) drain() error {
	if len(bw.buf) == 0 {
		return nil
	}
	var err error
	if bw.compressed {
		_, err = bw.writer.Write(bw.buf)
	} else {
		_, err = bw.ResponseWriter.Write(bw.buf)
	}
	bw.buf = bw.buf[:0]
	return err
}

func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > 11 {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || (cfg.Skipper != nil && cfg.Skipper(c)) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			minLength:      cfg.MinLength,
			writer:         brotli.NewWriterLevel(c.Writer, cfg.Quality),
		}

		defer func() {
			if err := bw.drain(); err != nil {
				_ = c.Error(err)
			}
			if bw.compressed {
				bw.writer.Close()
			}
		}()

		c.Writer = bw
		c.Next()
	}
}

// shouldSkip returns true for protocols that are incompatible with
// buffered compression and must be passed through untouched.
func shouldSkip(c *gin.Context) bool {
	// SSE requires immediate streaming
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	// The Upgrade handshake fails if the response is wrapped
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	return false
}

func alreadyCompressed(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "spreadsheetml") ||
		strings.Contains(ct, "zip") ||
		strings.HasPrefix(ct, "image/")
}

func acceptsBrotli(r *http.Request) bool {
	ae := r.Header.Get("Accept-Encoding")
	for _, enc := range strings.Split(ae, ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
