package scoring

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"Tokyo is the capital.", 4},
		{"line\nbreak\ttab", 3},
	}
	for _, tt := range tests {
		if got := WordCount(tt.text); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTokenizeDropsPunctuation(t *testing.T) {
	got := Tokenize("Tokyo is the capital.")
	want := []string{"tokyo", "is", "the", "capital"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
	if Tokenize("  ") != nil {
		t.Error("blank text should yield no tokens")
	}
}

func TestBLEU(t *testing.T) {
	ref := []string{"the", "cat", "sat", "on", "the", "mat"}

	if got := BLEU(ref, ref); !approx(got, 1.0) {
		t.Errorf("identical BLEU = %v, want 1", got)
	}
	if got := BLEU(ref, nil); got != 0 {
		t.Errorf("empty candidate BLEU = %v, want 0", got)
	}
	if got := BLEU(nil, ref); got != 0 {
		t.Errorf("empty reference BLEU = %v, want 0", got)
	}

	partial := BLEU(ref, []string{"the", "cat", "sat", "on", "a", "rug"})
	unrelated := BLEU(ref, []string{"dogs", "bark", "loudly", "at", "night", "always"})
	if !(partial > unrelated) {
		t.Errorf("partial %v should beat unrelated %v", partial, unrelated)
	}
	if partial <= 0 || partial >= 1 {
		t.Errorf("partial BLEU %v out of (0,1)", partial)
	}

	// Shorter candidates are penalized.
	short := BLEU(ref, []string{"the", "cat", "sat"})
	if short >= partial {
		t.Errorf("short candidate %v should score below %v", short, partial)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); !approx(got, 1) {
		t.Errorf("same direction = %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); !approx(got, 0) {
		t.Errorf("orthogonal = %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("opposite should clamp to 0, got %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch = %v", got)
	}
}

func TestRelevance(t *testing.T) {
	stop := map[string]bool{"what": true, "is": true, "the": true, "of": true}

	got, ok := Relevance(
		[]string{"what", "is", "the", "capital", "of", "japan"},
		[]string{"the", "capital", "is", "tokyo"},
		stop,
	)
	if !ok || !approx(got, 0.5) {
		t.Errorf("Relevance = %v, %v; want 0.5", got, ok)
	}

	if _, ok := Relevance([]string{"what", "is"}, []string{"x"}, stop); ok {
		t.Error("stopword-only question should have no relevance")
	}
}

type fakeEmbedder struct {
	vecs [][]float32
	err  error
}

func (f fakeEmbedder) CreateEmbeddings(_ context.Context, _ openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	var resp openai.EmbeddingResponse
	for i, v := range f.vecs {
		resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: v})
	}
	return resp, nil
}

func TestScorerScore(t *testing.T) {
	stop, err := LoadStopwords("")
	if err != nil {
		t.Fatalf("LoadStopwords: %v", err)
	}
	s := New(fakeEmbedder{vecs: [][]float32{{1, 0}, {1, 0}}}, "embed", stop)

	scores := s.Score(context.Background(), "What is the capital of Japan?", "Tokyo is the capital of Japan.", "The capital of Japan is Tokyo.")
	if scores.WordCount != 6 {
		t.Errorf("WordCount = %d", scores.WordCount)
	}
	if scores.BLEU == nil || *scores.BLEU <= 0 {
		t.Errorf("BLEU = %v", scores.BLEU)
	}
	if scores.Similarity == nil || !approx(*scores.Similarity, 1) {
		t.Errorf("Similarity = %v", scores.Similarity)
	}
	if scores.Relevance == nil || !approx(*scores.Relevance, 1) {
		t.Errorf("Relevance = %v", scores.Relevance)
	}

	// No reference: no BLEU, no similarity.
	scores = s.Score(context.Background(), "What is Go?", "A language.", "")
	if scores.BLEU != nil || scores.Similarity != nil {
		t.Errorf("expected nil reference metrics, got %+v", scores)
	}
}

func TestScorerEmbeddingFailure(t *testing.T) {
	s := New(fakeEmbedder{err: errors.New("down")}, "embed", nil)
	scores := s.Score(context.Background(), "q", "a b", "a b")
	if scores.Similarity != nil {
		t.Errorf("expected nil similarity on embedder error, got %v", *scores.Similarity)
	}
	if scores.BLEU == nil {
		t.Error("BLEU should not depend on the embedder")
	}

	s = New(fakeEmbedder{vecs: [][]float32{{1}, {1}}}, "", nil)
	if scores := s.Score(context.Background(), "q", "a", "a"); scores.Similarity != nil {
		t.Error("empty embedding model should disable similarity")
	}
}

func TestEnsureResourcesDownloadsOnce(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("foo\nbar\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path, fetched, err := EnsureResources(context.Background(), srv.Client(), dir, srv.URL)
	if err != nil {
		t.Fatalf("EnsureResources: %v", err)
	}
	if !fetched {
		t.Error("expected first call to download")
	}
	words, err := LoadStopwords(path)
	if err != nil {
		t.Fatalf("LoadStopwords: %v", err)
	}
	if !words["foo"] || !words["bar"] || len(words) != 2 {
		t.Errorf("unexpected stopwords %v", words)
	}

	_, fetched, err = EnsureResources(context.Background(), srv.Client(), dir, srv.URL)
	if err != nil {
		t.Fatalf("EnsureResources again: %v", err)
	}
	if fetched || hits != 1 {
		t.Errorf("expected no second download, fetched=%v hits=%d", fetched, hits)
	}
}

func TestEnsureResourcesFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		url  string
	}{
		{name: "download fails", url: srv.URL},
		{name: "no url", url: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path, fetched, err := EnsureResources(context.Background(), srv.Client(), dir, tt.url)
			if err != nil {
				t.Fatalf("EnsureResources: %v", err)
			}
			if fetched || path != "" {
				t.Errorf("got path=%q fetched=%v, want bundled fallback", path, fetched)
			}
			if _, err := os.Stat(filepath.Join(dir, stopwordsFile)); !os.IsNotExist(err) {
				t.Errorf("fallback should not be persisted, stat err = %v", err)
			}
			words, _ := LoadStopwords(path)
			if !words["the"] {
				t.Error("bundled list should contain 'the'")
			}
		})
	}
}

func TestEnsureResourcesRetriesAfterFailedStart(t *testing.T) {
	var (
		mu   sync.Mutex
		fail = true
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		hits++
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("foo\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	if path, fetched, err := EnsureResources(context.Background(), srv.Client(), dir, srv.URL); err != nil || fetched || path != "" {
		t.Fatalf("first start: path=%q fetched=%v err=%v", path, fetched, err)
	}

	mu.Lock()
	fail = false
	mu.Unlock()

	path, fetched, err := EnsureResources(context.Background(), srv.Client(), dir, srv.URL)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	mu.Lock()
	n := hits
	mu.Unlock()
	if !fetched || n != 2 {
		t.Errorf("expected a second download, fetched=%v hits=%d", fetched, n)
	}
	words, err := LoadStopwords(path)
	if err != nil {
		t.Fatalf("LoadStopwords: %v", err)
	}
	if !words["foo"] || words["the"] {
		t.Errorf("downloaded list not installed: %v", words)
	}
}
