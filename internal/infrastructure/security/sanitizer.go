package security

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
)

// Sensitive header names that should be redacted.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

// Sensitive field names in JSON bodies that should be redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"key",
	"authorization",
	"sign",
	"credential",
	"auth",
}

// XML elements whose text is a credential or a signed credential request.
// loginCmsReturn carries the escaped ticket response with token and sign.
var sensitiveElements = map[string]bool{
	"token":          true,
	"sign":           true,
	"in0":            true,
	"logincmsreturn": true,
	"privatekey":     true,
}

const redactedValue = "[REDACTED]"

// SanitizeHeaders returns a copy of headers with sensitive values redacted.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			sanitized[key] = redactedValue
			continue
		}
		sanitized[key] = strings.Join(values, ", ")
	}
	return sanitized
}

// SanitizeBody returns a JSON rendition of body safe to persist. JSON
// bodies have sensitive fields redacted, XML and SOAP bodies have sensitive
// elements redacted and are wrapped with "_format":"xml", anything else is
// wrapped as text or base64.
func SanitizeBody(body []byte, maxSize int) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		decompressed, err := decompressGzip(body)
		if err != nil {
			return wrapBinaryAsJSON(body, "gzip-compressed (decompression failed)")
		}
		body = decompressed
	}

	if !utf8.Valid(body) {
		return wrapBinaryAsJSON(body, "binary (non-UTF8)")
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		if sanitized, ok := sanitizeXML(trimmed); ok {
			return truncateOrWrap(sanitized, "xml", maxSize)
		}
	}

	if maxSize > 0 && len(body) > maxSize {
		return truncated(body, maxSize)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return wrapText(string(body), "text")
	}

	result, err := json.Marshal(sanitizeValue(data))
	if err != nil {
		return wrapText(string(body), "text")
	}
	return json.RawMessage(result)
}

// SanitizeXML redacts sensitive element text in an XML document. It returns
// the input unchanged when it does not parse.
func SanitizeXML(body []byte) []byte {
	if out, ok := sanitizeXML(body); ok {
		return out
	}
	return body
}

func sanitizeXML(body []byte) ([]byte, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, false
	}
	if doc.Root() == nil {
		return nil, false
	}
	redactElements(doc.Root())
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactElements(el *etree.Element) {
	if sensitiveElements[strings.ToLower(el.Tag)] {
		for _, child := range el.ChildElements() {
			el.RemoveChild(child)
		}
		el.SetText(redactedValue)
		return
	}
	for _, child := range el.ChildElements() {
		redactElements(child)
	}
}

func truncateOrWrap(body []byte, format string, maxSize int) json.RawMessage {
	if maxSize > 0 && len(body) > maxSize {
		return truncated(body, maxSize)
	}
	return wrapText(string(body), format)
}

func truncated(body []byte, maxSize int) json.RawMessage {
	result, _ := json.Marshal(map[string]any{
		"_truncated": true,
		"_size":      len(body),
		"_preview":   string(body[:maxSize]),
	})
	return json.RawMessage(result)
}

func wrapText(s, format string) json.RawMessage {
	result, _ := json.Marshal(map[string]any{
		"_raw":    s,
		"_format": format,
	})
	return json.RawMessage(result)
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func wrapBinaryAsJSON(data []byte, format string) json.RawMessage {
	result, _ := json.Marshal(map[string]any{
		"_binary": true,
		"_format": format,
		"_size":   len(data),
		"_base64": base64.StdEncoding.EncodeToString(data),
	})
	return json.RawMessage(result)
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		sanitized := make(map[string]any, len(val))
		for key, value := range val {
			if isSensitiveField(key) {
				sanitized[key] = redactedValue
				continue
			}
			sanitized[key] = sanitizeValue(value)
		}
		return sanitized
	case []any:
		sanitized := make([]any, len(val))
		for i, value := range val {
			sanitized[i] = sanitizeValue(value)
		}
		return sanitized
	default:
		return val
	}
}

func isSensitiveField(key string) bool {
	lower := strings.ToLower(key)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// SanitizeURL redacts sensitive query parameter values.
func SanitizeURL(url string) string {
	lowerURL := strings.ToLower(url)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerURL, field+"=") {
			url = redactQueryParam(url, field)
			lowerURL = strings.ToLower(url)
		}
	}
	return url
}

func redactQueryParam(url, param string) string {
	lowerURL := strings.ToLower(url)
	idx := strings.Index(lowerURL, strings.ToLower(param)+"=")
	if idx == -1 {
		return url
	}
	start := idx + len(param) + 1
	end := strings.IndexByte(url[start:], '&')
	if end == -1 {
		return url[:start] + redactedValue
	}
	return url[:start] + redactedValue + url[start+end:]
}
