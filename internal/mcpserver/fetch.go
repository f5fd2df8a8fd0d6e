package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/limen/internal/notation"
)

const maxSourceSize = 10 << 20 // 10 MB

var (
	mimeToKind = map[string]notation.Kind{
		"application/x-tagml":   notation.TAGML,
		"text/x-tagml":          notation.TAGML,
		"application/x-texmecs": notation.TexMECS,
		"text/x-texmecs":        notation.TexMECS,
		"application/x-lmnl":    notation.LMNL,
		"text/x-lmnl":           notation.LMNL,
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

func (s *Server) fetchSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target := req.GetString("path", "")

	var (
		data []byte
		kind notation.Kind
	)
	if strings.HasPrefix(rawURL, "data:") {
		data, kind, err = decodeDataURI(rawURL)
	} else {
		data, kind, err = s.fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !utf8.Valid(data) {
		return mcp.NewToolResultError("source is not valid UTF-8"), nil
	}

	if target == "" {
		target = filenameFromURL(rawURL, kind)
	}
	if !notation.Supported(target) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension: %s (allowed: %s)", path.Ext(target), supportedList())), nil
	}

	rec, created, err := s.svc.Import(ctx, target, "", data, req.GetBool("overwrite", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"document": rec, "created": created})
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, notation.Kind, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	var data []byte
	if strings.HasSuffix(meta, ";base64") {
		var err error
		data, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, "", fmt.Errorf("invalid base64 data: %w", err)
			}
		}
	} else {
		text, err := url.PathUnescape(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid data URI: %w", err)
		}
		data = []byte(text)
	}
	if len(data) > maxSourceSize {
		return nil, "", fmt.Errorf("file too large: %d bytes (max %d)", len(data), maxSourceSize)
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return data, mimeToKind[mime], nil
}

// fetchHTTP downloads a file from an HTTP/HTTPS URL with security checks.
func (s *Server) fetchHTTP(ctx context.Context, rawURL string) ([]byte, notation.Kind, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := s.checkHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return s.checkHost(req.URL.Hostname())
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxSourceSize {
		return nil, "", fmt.Errorf("file too large: exceeds %d bytes", maxSourceSize)
	}

	ct := resp.Header.Get("Content-Type")
	return data, mimeToKind[strings.TrimSpace(strings.Split(ct, ";")[0])], nil
}

// checkBlockedHost rejects loopback, unspecified, link-local and cloud
// metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("blocked host: loopback address %s", host)
	case ip.IsUnspecified():
		return fmt.Errorf("blocked host: unspecified address %s", host)
	case ip.IsLinkLocalUnicast():
		// Covers 169.254.169.254, the AWS/GCP/Azure metadata endpoint.
		return fmt.Errorf("blocked host: link-local address %s", host)
	}
	return nil
}

// filenameFromURL tries to extract a file name from a URL, falling back to
// a UUID with the extension of kind.
func filenameFromURL(rawURL string, kind notation.Kind) string {
	if !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
				return sanitizeFilename(base)
			}
		}
	}
	ext := ".txt"
	if kind != "" {
		ext = kind.Extension()
	}
	return uuid.NewString() + ext
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = uuid.NewString()
	}
	return name
}
