package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestProvider(t *testing.T, mux *http.ServeMux) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewOpenAI(config.AI{
		APIKey:          "test-key",
		BaseURL:         srv.URL + "/v1",
		ImageModel:      "dall-e-2",
		ChatModel:       "gpt-4o-mini",
		ModerationModel: "omni-moderation-latest",
		ImageCount:      1,
		ImageSize:       "512x512",
		MaxPromptLength: 40,
	})
	require.NoError(t, err)
	return p
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(config.AI{})
	assert.Error(t, err)
}

func TestGenerateRawThenDecode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a red fox", req["prompt"])
		assert.Equal(t, "b64_json", req["response_format"])
		assert.Equal(t, "user-1", req["user"])
		_, _ = io.WriteString(w, `{"created":1,"data":[{"b64_json":"`+base64.StdEncoding.EncodeToString(pngHeader)+`"}]}`)
	})
	p := newTestProvider(t, mux)

	body, err := p.GenerateRaw(context.Background(), "a red fox", "user-1")
	require.NoError(t, err)

	blobs, err := p.DecodeImages(context.Background(), body)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, pngHeader, blobs[0].Data)
	assert.Equal(t, "image/png", blobs[0].ContentType)
}

func TestGenerateRawProviderError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
	})
	p := newTestProvider(t, mux)

	_, err := p.GenerateRaw(context.Background(), "x", "user-1")
	assert.Equal(t, apperr.KindProvider, apperr.KindOf(err))
}

func TestDecodeImagesFetchesURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/a.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngHeader)
	})
	mux.HandleFunc("/files/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	p, err := NewOpenAI(config.AI{APIKey: "k"})
	require.NoError(t, err)

	blobs, err := p.DecodeImages(context.Background(), []byte(`{"data":[{"url":"`+srv.URL+`/files/a.png"}]}`))
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, "image/png", blobs[0].ContentType)

	_, err = p.DecodeImages(context.Background(), []byte(`{"data":[{"url":"`+srv.URL+`/files/missing.png"}]}`))
	assert.Equal(t, apperr.KindProvider, apperr.KindOf(err))
}

func TestDecodeImagesRejectsBadBodies(t *testing.T) {
	p, err := NewOpenAI(config.AI{APIKey: "k"})
	require.NoError(t, err)

	for _, body := range []string{`not json`, `{"data":[]}`, `{"data":[{"b64_json":"***"}]}`, `{"data":[{}]}`} {
		_, err := p.DecodeImages(context.Background(), []byte(body))
		assert.Equal(t, apperr.KindProvider, apperr.KindOf(err), body)
	}
}

func TestModerate(t *testing.T) {
	var flagged atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/moderations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "modr-1",
			"results": []map[string]any{{"flagged": false}, {"flagged": flagged.Load()}},
		})
	})
	p := newTestProvider(t, mux)

	ok, err := p.Moderate(context.Background(), "a cat")
	require.NoError(t, err)
	assert.False(t, ok)

	flagged.Store(true)
	ok, err = p.Moderate(context.Background(), "something else")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImprovePromptTrimsAndCaps(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "a cat", req.Messages[1].Content)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chat-1",
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": `  "a fluffy ginger cat sleeping in warm afternoon sunlight"  `},
			}},
		})
	})
	p := newTestProvider(t, mux)

	out, err := p.ImprovePrompt(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "a fluffy ginger cat sleeping in warm aft", out)
	assert.Len(t, []rune(out), 40)
}
