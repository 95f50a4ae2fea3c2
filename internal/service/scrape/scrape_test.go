package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
)

const recipePage = `<!DOCTYPE html>
<html>
<head>
  <title>Tomato Soup</title>
  <style>body { color: red; }</style>
  <script>var tracking = "do not index";</script>
</head>
<body>
  <nav>HOME</nav>
  <h1>Roasted Tomato Soup</h1>
  <ul>
    <li>2 pounds ripe tomatoes, halved</li>
    <li>1 yellow onion, sliced thin</li>
  </ul>
  <p>Roast the tomatoes at 425F for 30 minutes until blistered.</p>
  <p>Subscribe to our newsletter!</p>
  <footer>© 2024 Soup Co. All rights reserved.</footer>
</body>
</html>`

func TestHTMLToText(t *testing.T) {
	text, err := HTMLToText(strings.NewReader(recipePage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(text, "tracking") || strings.Contains(text, "color: red") {
		t.Errorf("script or style content leaked into text: %q", text)
	}
	for _, want := range []string{"Roasted Tomato Soup", "2 pounds ripe tomatoes, halved", "HOME"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected text to contain %q", want)
		}
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"keeps recipe lines", "Preheat the oven\n2 cups flour", "Preheat the oven\n2 cups flour"},
		{"drops blank lines", "one line here\n\n   \nsecond line", "one line here\nsecond line"},
		{"drops boilerplate", "Accept COOKIES\nMix well\nShare on Facebook", "Mix well"},
		{"drops short all caps", "MENU\nSTEP 1\nWhisk the eggs", "Whisk the eggs"},
		{"keeps long all caps", "INGREDIENTS FOR THE SAUCE", "INGREDIENTS FOR THE SAUCE"},
		{"keeps short mixed case", "Serves 4", "Serves 4"},
		{"keeps short numbers", "350", "350"},
		{"drops copyright", "© Soup Co", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestScraper_FromURL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(recipePage))
	}))
	defer srv.Close()

	s := New(Config{})
	recipe, err := s.FromURL(context.Background(), srv.URL+"/soup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotUA != DefaultUserAgent {
		t.Errorf("expected browser user agent, got %q", gotUA)
	}
	want := "Tomato Soup\nRoasted Tomato Soup\n2 pounds ripe tomatoes, halved\n1 yellow onion, sliced thin\n" +
		"Roast the tomatoes at 425F for 30 minutes until blistered."
	if recipe != want {
		t.Errorf("unexpected recipe:\n%s\nwant:\n%s", recipe, want)
	}
}

func TestScraper_FromURL_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/empty":
			_, _ = w.Write([]byte("<html><body><p>Too short.</p></body></html>"))
		}
	}))
	defer srv.Close()

	tests := []struct {
		name string
		url  string
		want error
	}{
		{"empty url", "", ErrInvalidURL},
		{"not http", "ftp://example.com/recipe", ErrInvalidURL},
		{"non 2xx", srv.URL + "/missing", ErrFetchFailed},
		{"too little content", srv.URL + "/empty", ErrNoContent},
	}

	s := New(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.FromURL(context.Background(), tt.url)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewCondenser_MissingKey(t *testing.T) {
	if _, err := NewCondenser(CondenserConfig{}); !errors.Is(err, ErrMissingLLMKey) {
		t.Errorf("expected ErrMissingLLMKey, got %v", err)
	}
}

func TestCondenser_Condense(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "llama-3.1-8b-instant",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "Roast tomatoes, blend, season."}
			}]
		}`))
	}))
	defer srv.Close()

	c, err := NewCondenser(CondenserConfig{APIKey: "gsk-test", BaseURL: srv.URL, Temperature: 0.4},
		option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := strings.Repeat("Roast the tomatoes. ", 20)
	got, err := c.Condense(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Roast tomatoes, blend, season." {
		t.Errorf("unexpected condensed text %q", got)
	}

	if body["model"] != DefaultLLMModel {
		t.Errorf("expected default model, got %v", body["model"])
	}
	if body["top_p"] != 0.8 || body["temperature"] != 0.4 {
		t.Errorf("unexpected sampling params: top_p=%v temperature=%v", body["top_p"], body["temperature"])
	}
	if body["max_completion_tokens"] != float64(len(text)/4) {
		t.Errorf("expected max_completion_tokens %d, got %v", len(text)/4, body["max_completion_tokens"])
	}
}

func TestCondenser_Condense_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
	}))
	defer srv.Close()

	c, _ := NewCondenser(CondenserConfig{APIKey: "gsk-test", BaseURL: srv.URL}, option.WithMaxRetries(0))
	if _, err := c.Condense(context.Background(), "some recipe text"); !errors.Is(err, ErrCondenseFailed) {
		t.Errorf("expected ErrCondenseFailed, got %v", err)
	}
}
