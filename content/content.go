// Package content turns job description, resume and question sources into
// plain text.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupported is returned for file formats that cannot be read as text.
var ErrUnsupported = errors.New("unsupported content format")

// maxBody caps how much of a fetched page is read.
const maxBody = 2 << 20

var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// Extractor reads local text files and fetches http(s) URLs.
type Extractor struct {
	client *http.Client
}

func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{client: client}
}

// Extract returns the text at source, a file path or an http(s) URL. An
// empty source yields an empty string.
func (e *Extractor) Extract(ctx context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return "", nil
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return e.fetch(ctx, source)
	default:
		return readFile(source)
	}
}

func readFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (e *Extractor) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "text/") {
		return "", fmt.Errorf("%w: %s served %s", ErrUnsupported, url, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	text := string(body)
	if strings.HasPrefix(ct, "text/html") {
		text = stripTags(text)
	}
	return strings.TrimSpace(text), nil
}

// stripTags drops markup and script/style bodies, collapsing whitespace.
func stripTags(html string) string {
	var b strings.Builder
	lower := strings.ToLower(html)
	for i := 0; i < len(html); {
		if html[i] != '<' {
			b.WriteByte(html[i])
			i++
			continue
		}
		skipTo := ""
		switch {
		case strings.HasPrefix(lower[i:], "<script"):
			skipTo = "</script>"
		case strings.HasPrefix(lower[i:], "<style"):
			skipTo = "</style>"
		}
		if skipTo != "" {
			end := strings.Index(lower[i:], skipTo)
			if end < 0 {
				break
			}
			i += end + len(skipTo)
			continue
		}
		end := strings.IndexByte(html[i:], '>')
		if end < 0 {
			break
		}
		b.WriteByte(' ')
		i += end + 1
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
