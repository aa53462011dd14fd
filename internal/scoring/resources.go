package scoring

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const stopwordsFile = "stopwords.txt"

//go:embed stopwords_en.txt
var defaultStopwords []byte

// EnsureResources makes sure the stopword list exists under dir, downloading
// it from url when missing. It reports whether a download happened. Without
// a url, or when the download fails, it returns an empty path so callers use
// the bundled list; nothing is written then, and the next start retries.
func EnsureResources(ctx context.Context, client *http.Client, dir, url string) (string, bool, error) {
	path := filepath.Join(dir, stopwordsFile)
	if _, err := os.Stat(path); err == nil {
		slog.Debug("language resources present", "path", path)
		return path, false, nil
	}
	if url == "" {
		return "", false, nil
	}

	body, err := download(ctx, client, url)
	if err != nil {
		slog.Warn("resource download failed, using bundled stopwords", "url", url, "error", err)
		return "", false, nil
	}
	slog.Info("downloaded language resources", "url", url, "bytes", len(body))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create resource dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", false, fmt.Errorf("write stopwords: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", false, fmt.Errorf("install stopwords: %w", err)
	}
	return path, true, nil
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// LoadStopwords reads a one-word-per-line list. An empty path yields the
// bundled list.
func LoadStopwords(path string) (map[string]bool, error) {
	data := defaultStopwords
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stopwords: %w", err)
		}
	}
	words := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words[w] = true
	}
	return words, sc.Err()
}
