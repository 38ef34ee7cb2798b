package httpio

import (
	"bufio"
	"fmt"
	"io"

	"daap-server/internal/dmap"
)

// chunkSize is the fixed block size WriteFile reads/writes in, the
// backpressure mechanism spec.md §5 calls for: a blocking writer and fixed
// 8 KiB chunks naturally slow the producer to match a slow reader without
// any buffering of our own.
const chunkSize = 8 * 1024

// ResponseWriter writes one HTTP/1.1 response: a status line, a fixed
// header set, and a body with an always-present Content-Length. There is
// no chunked transfer-encoding; every write uses an absolute length,
// exactly as spec.md §4.3/§6 require.
type ResponseWriter struct {
	w          *bufio.Writer
	ServerName string

	// StatusCode and BytesWritten record the last response written, for
	// the benefit of a request-logging wrapper around Handler; nothing
	// in this package reads them back.
	StatusCode   int
	BytesWritten int64
}

func NewResponseWriter(w *bufio.Writer, serverName string) *ResponseWriter {
	return &ResponseWriter{w: w, ServerName: serverName}
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 206:
		return "Partial Content"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}

func (w *ResponseWriter) writeStatusLine(code int) error {
	w.StatusCode = code
	_, err := fmt.Fprintf(w.w, "HTTP/1.1 %d %s\r\n", code, statusText(code))
	return err
}

func (w *ResponseWriter) writeHeader(name, value string) {
	fmt.Fprintf(w.w, "%s: %s\r\n", name, value)
}

func (w *ResponseWriter) endHeaders() error {
	_, err := w.w.WriteString("\r\n")
	return err
}

// WriteDMAP writes a 200 response whose body is the DMAP encoding of node,
// with Content-Type: application/x-dmap-tagged and a DAAP-Server header.
func (w *ResponseWriter) WriteDMAP(node dmap.Node) error {
	body := dmap.Encode(node)
	if err := w.writeStatusLine(200); err != nil {
		return err
	}
	w.writeHeader("Content-Type", "application/x-dmap-tagged")
	w.writeHeader("DAAP-Server", w.ServerName)
	w.writeHeader("Content-Length", fmt.Sprint(len(body)))
	if err := w.endHeaders(); err != nil {
		return err
	}
	if _, err := w.w.Write(body); err != nil {
		return err
	}
	w.BytesWritten += int64(len(body))
	return w.w.Flush()
}

// WriteError writes a short UTF-8 text body at the given status code.
func (w *ResponseWriter) WriteError(code int, text string) error {
	body := []byte(text)
	if err := w.writeStatusLine(code); err != nil {
		return err
	}
	w.writeHeader("Content-Type", "text/plain; charset=utf-8")
	w.writeHeader("DAAP-Server", w.ServerName)
	w.writeHeader("Content-Length", fmt.Sprint(len(body)))
	if err := w.endHeaders(); err != nil {
		return err
	}
	if _, err := w.w.Write(body); err != nil {
		return err
	}
	w.BytesWritten += int64(len(body))
	return w.w.Flush()
}

// WriteAuthChallenge writes a 401 carrying WWW-Authenticate: Basic.
func (w *ResponseWriter) WriteAuthChallenge(realm string) error {
	if err := w.writeStatusLine(401); err != nil {
		return err
	}
	w.writeHeader("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, realm))
	w.writeHeader("Content-Type", "text/plain; charset=utf-8")
	w.writeHeader("DAAP-Server", w.ServerName)
	w.writeHeader("Content-Length", "0")
	if err := w.endHeaders(); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteFile streams a track's audio bytes, honoring an optional byte
// range. When rng is nil, or rng.Offset is 0, it writes a plain 200 with
// the full length. A positive offset writes 206 with the documented,
// intentionally non-standard Content-Range form "bytes off-len/len+1"
// (preserved for client compatibility, see spec.md §9).
func (w *ResponseWriter) WriteFile(src io.Reader, length int64, rng *ByteRange, mimeType string) error {
	offset := int64(0)
	status := 200
	if rng != nil && rng.Offset > 0 {
		offset = rng.Offset
		status = 206
	}
	if offset > length {
		offset = length
	}
	remaining := length - offset

	if err := w.writeStatusLine(status); err != nil {
		return err
	}
	w.writeHeader("Content-Type", mimeType)
	w.writeHeader("DAAP-Server", w.ServerName)
	w.writeHeader("Content-Length", fmt.Sprint(remaining))
	if status == 206 {
		w.writeHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, length, length+1))
	}
	if err := w.endHeaders(); err != nil {
		return err
	}

	if offset > 0 {
		if seeker, ok := src.(io.Seeker); ok {
			if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
				return err
			}
		} else if _, err := io.CopyN(io.Discard, src, offset); err != nil {
			return err
		}
	}

	buf := make([]byte, chunkSize)
	var sent int64
	for sent < remaining {
		n := int64(len(buf))
		if remaining-sent < n {
			n = remaining - sent
		}
		r, err := src.Read(buf[:n])
		if r > 0 {
			if _, werr := w.w.Write(buf[:r]); werr != nil {
				return werr
			}
			sent += int64(r)
			w.BytesWritten += int64(r)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return w.w.Flush()
}

// WriteArtwork writes a 200 with Content-Type: image/<mime> and the raw
// bytes.
func (w *ResponseWriter) WriteArtwork(data []byte, mimeSubtype string) error {
	if err := w.writeStatusLine(200); err != nil {
		return err
	}
	w.writeHeader("Content-Type", "image/"+mimeSubtype)
	w.writeHeader("DAAP-Server", w.ServerName)
	w.writeHeader("Content-Length", fmt.Sprint(len(data)))
	if err := w.endHeaders(); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	w.BytesWritten += int64(len(data))
	return w.w.Flush()
}
