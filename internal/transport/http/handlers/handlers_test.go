package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/daffahilmyf/go-imagegen/internal/infra/relay"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/middleware"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeneration struct {
	submitted []service.GenerateRequest
	submitErr error
	urls      []string
	pollErr   error
	callbacks []string
	cbErr     error
	watched   entity.PendingRequest
	watchErr  error
}

func (f *fakeGeneration) Submit(_ context.Context, _ service.Principal, req service.GenerateRequest) (string, error) {
	f.submitted = append(f.submitted, req)
	return "msg-1", f.submitErr
}

func (f *fakeGeneration) Poll(context.Context, service.Principal, string) ([]string, error) {
	return f.urls, f.pollErr
}

func (f *fakeGeneration) HandleCallback(_ context.Context, id string, status int, body []byte) error {
	f.callbacks = append(f.callbacks, id+":"+string(body))
	return f.cbErr
}

func (f *fakeGeneration) Watch(context.Context, service.Principal, string) (entity.PendingRequest, error) {
	return f.watched, f.watchErr
}

type fakeImages struct {
	page      service.ImagePage
	lastInput service.ListImagesInput
	deleteErr error
}

func (f *fakeImages) List(_ context.Context, _ service.Principal, in service.ListImagesInput) (service.ImagePage, error) {
	f.lastInput = in
	if in.Cursor == "bad" {
		return service.ImagePage{}, apperr.Validation("invalid cursor")
	}
	return f.page, nil
}

func (f *fakeImages) Delete(_ context.Context, _ service.Principal, id int64) (entity.GeneratedImage, error) {
	if f.deleteErr != nil {
		return entity.GeneratedImage{}, f.deleteErr
	}
	return entity.GeneratedImage{ID: id, Prompt: "gone"}, nil
}

func (f *fakeImages) Generate(_ context.Context, _ service.Principal, prompt string) ([]service.ImageView, error) {
	return []service.ImageView{{GeneratedImage: entity.GeneratedImage{ID: 1, Prompt: prompt, Key: "a.png"}, URL: "http://x/a.png"}}, nil
}

func (f *fakeImages) Persist(context.Context, string, string, []repository.Blob) ([]service.ImageView, error) {
	return nil, nil
}

type fakeAccounts struct {
	service.AccountService
	count service.TokenCount
}

func (f fakeAccounts) GetTokenCount(context.Context, service.Principal) (service.TokenCount, error) {
	return f.count, nil
}

type fakePrompts struct{}

func (fakePrompts) Improve(_ context.Context, _ service.Principal, prompt string) (string, error) {
	return prompt + " at golden hour", nil
}

type fakeStorage struct {
	repository.ObjectStorage
	files map[string]string
}

func (f fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, repository.ObjectInfo, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, repository.ObjectInfo{}, repository.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(data)), repository.ObjectInfo{Key: key, ContentType: "image/png", Size: uint64(len(data))}, nil
}

type fakeStore struct {
	repository.Store
	err error
}

func (f fakeStore) Ping(context.Context) error { return f.err }

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (service.Principal, error) {
	if token == "good" {
		return service.Principal{UserID: "user_1"}, nil
	}
	return service.Principal{}, errors.New("bad token")
}

type fixture struct {
	engine     *gin.Engine
	generation *fakeGeneration
	images     *fakeImages
	signer     *relay.Signer
}

func newFixture(t *testing.T, count service.TokenCount, storeErr error) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	signer, err := relay.NewSigner("relay-key", "relay", time.Minute)
	require.NoError(t, err)
	verifier, err := relay.NewVerifier("relay-key", "", "relay")
	require.NoError(t, err)

	f := fixture{generation: &fakeGeneration{}, images: &fakeImages{}, signer: signer}
	h := NewHandler(Deps{
		Accounts:         fakeAccounts{count: count},
		Images:           f.images,
		Generation:       f.generation,
		Prompts:          fakePrompts{},
		Storage:          fakeStorage{files: map[string]string{"a.png": "PNGDATA"}},
		Store:            fakeStore{err: storeErr},
		HealthcheckToken: "hc-token",
		Log:              log,
	})
	noop := func(c *gin.Context) { c.Next() }
	engine := gin.New()
	engine.Use(middleware.RequestID())
	NewRouter(h).RegisterRoutes(engine, Middlewares{
		Auth:         middleware.Auth(staticVerifier{}, nil),
		RelayAuth:    middleware.Auth(staticVerifier{}, response.RespondMessage),
		DefaultLimit: noop,
		RelayLimit:   noop,
		PromptLimit:  noop,
		Idempotency:  middleware.Idempotency(response.RespondMessage),
		Signature:    middleware.Signature(verifier, log),
	})
	f.engine = engine
	return f
}

func (f fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

var authed = map[string]string{"Authorization": "Bearer good"}

func TestGenerateAccepted(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	rec := f.do(nethttp.MethodPost, "/api/image/generate", `{"prompt":"a red fox"}`, map[string]string{
		"Authorization":   "Bearer good",
		"Idempotency-Key": "k-1",
	})
	require.Equal(t, nethttp.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"messageId":"msg-1"}`, rec.Body.String())
	require.Len(t, f.generation.submitted, 1)
	assert.Equal(t, "k-1", f.generation.submitted[0].IdempotencyKey)
	assert.NotEmpty(t, f.generation.submitted[0].RequestHash)
}

func TestGenerateErrors(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	rec := f.do(nethttp.MethodPost, "/api/image/generate", `{"prompt":"x"}`, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"missing bearer token"}`, rec.Body.String())

	rec = f.do(nethttp.MethodPost, "/api/image/generate", `{}`, authed)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	f.generation.submitErr = apperr.Quota("You don't have enough tokens to generate images")
	rec = f.do(nethttp.MethodPost, "/api/image/generate", `{"prompt":"x"}`, authed)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"You don't have enough tokens to generate images"}`, rec.Body.String())

	f.generation.submitErr = apperr.Internal("publish", errors.New("nats: no responders"))
	rec = f.do(nethttp.MethodPost, "/api/image/generate", `{"prompt":"x"}`, authed)
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nats")
}

func TestPoll(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	f.generation.pollErr = apperr.NotFound("generation not finished")
	rec := f.do(nethttp.MethodPost, "/api/image/poll", `{"messageId":"msg-1"}`, authed)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	f.generation.pollErr = apperr.Gone("image generation failed")
	rec = f.do(nethttp.MethodPost, "/api/image/poll", `{"messageId":"msg-1"}`, authed)
	assert.Equal(t, nethttp.StatusGone, rec.Code)
	assert.JSONEq(t, `{"message":"image generation failed"}`, rec.Body.String())

	f.generation.pollErr = nil
	f.generation.urls = []string{"http://x/a.png"}
	rec = f.do(nethttp.MethodPost, "/api/image/poll", `{"messageId":"msg-1"}`, authed)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"urls":["http://x/a.png"]}`, rec.Body.String())
}

func TestCallback(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)
	raw, err := json.Marshal(relay.NewEnvelope("msg-1", 200, []byte(`{"data":[]}`)))
	require.NoError(t, err)
	token, err := f.signer.Sign("cb", raw)
	require.NoError(t, err)

	rec := f.do(nethttp.MethodPost, "/api/image/callback", string(raw), map[string]string{relay.SignatureHeader: token})
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, []string{`msg-1:{"data":[]}`}, f.generation.callbacks)

	f.generation.cbErr = apperr.Conflict("generation is not waiting")
	rec = f.do(nethttp.MethodPost, "/api/image/callback", string(raw), map[string]string{relay.SignatureHeader: token})
	assert.Equal(t, nethttp.StatusConflict, rec.Code)

	rec = f.do(nethttp.MethodPost, "/api/image/callback", string(raw), nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.Len(t, f.generation.callbacks, 2)
}

func TestEvents(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	f.generation.watched = entity.PendingRequest{Status: entity.PendingDone, URLs: []string{"http://x/a.png"}}
	rec := f.do(nethttp.MethodGet, "/api/image/events/msg-1", "", authed)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, rec.Body.String(), "event:done")
	assert.Contains(t, rec.Body.String(), "http://x/a.png")

	f.generation.watched = entity.PendingRequest{Status: entity.PendingFailed, Reason: "image generation failed"}
	rec = f.do(nethttp.MethodGet, "/api/image/events/msg-1", "", authed)
	assert.Contains(t, rec.Body.String(), "event:failed")

	f.generation.watchErr = context.DeadlineExceeded
	rec = f.do(nethttp.MethodGet, "/api/image/events/msg-1", "", authed)
	assert.Contains(t, rec.Body.String(), "event:timeout")

	f.generation.watchErr = apperr.NotFound("generation not found")
	rec = f.do(nethttp.MethodGet, "/api/image/events/msg-1", "", authed)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

type blockingGeneration struct {
	fakeGeneration
}

func (blockingGeneration) Watch(ctx context.Context, _ service.Principal, _ string) (entity.PendingRequest, error) {
	<-ctx.Done()
	return entity.PendingRequest{}, ctx.Err()
}

func TestEventsOutlivesServerWriteTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHandler(Deps{Generation: &blockingGeneration{}, WatchTimeout: 400 * time.Millisecond, Log: log})
	engine := gin.New()
	engine.GET("/events/:messageId", h.events)

	srv := httptest.NewUnstartedServer(engine)
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	client := &nethttp.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/events/msg-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "event:timeout")
}

func TestFile(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	rec := f.do(nethttp.MethodGet, "/api/image/file/a.png", "", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "PNGDATA", rec.Body.String())

	rec = f.do(nethttp.MethodGet, "/api/image/file/missing.png", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestListImages(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)
	next := 2
	f.images.page = service.ImagePage{
		Images:     []service.ImageView{{GeneratedImage: entity.GeneratedImage{ID: 7, Prompt: "fox"}, URL: "http://x/7.png"}},
		NextCursor: &next,
	}

	rec := f.do(nethttp.MethodGet, "/api/v1/images?search=fox&limit=1&cursor=1", "", authed)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var body struct {
		Data service.ImagePage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Images, 1)
	assert.Equal(t, "http://x/7.png", body.Data.Images[0].URL)
	require.NotNil(t, body.Data.NextCursor)
	assert.Equal(t, 2, *body.Data.NextCursor)
	assert.Equal(t, service.ListImagesInput{Search: "fox", Limit: 1, Cursor: "1"}, f.images.lastInput)

	rec = f.do(nethttp.MethodGet, "/api/v1/images?cursor=bad", "", authed)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = f.do(nethttp.MethodGet, "/api/v1/images?limit=abc", "", authed)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = f.do(nethttp.MethodGet, "/api/v1/images", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
}

func TestDeleteImage(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	rec := f.do(nethttp.MethodDelete, "/api/v1/images/3", "", authed)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":3`)

	rec = f.do(nethttp.MethodDelete, "/api/v1/images/abc", "", authed)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	f.images.deleteErr = apperr.NotFound("image not found")
	rec = f.do(nethttp.MethodDelete, "/api/v1/images/3", "", authed)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestGenerateImagesSync(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	rec := f.do(nethttp.MethodPost, "/api/v1/images/generate", `{"prompt":"a fox"}`, authed)
	assert.Equal(t, nethttp.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"url":"http://x/a.png"`)
}

func TestTokenCount(t *testing.T) {
	next := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, service.TokenCount{Count: 4, NextRegeneration: &next}, nil)
	rec := f.do(nethttp.MethodGet, "/api/v1/tokens", "", authed)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tokenCount":4`)
	assert.Contains(t, rec.Body.String(), `"nextRegeneration":"2026-03-08T00:00:00Z"`)

	f = newFixture(t, service.TokenCount{Unlimited: true}, nil)
	rec = f.do(nethttp.MethodGet, "/api/v1/tokens", "", authed)
	assert.Contains(t, rec.Body.String(), `"tokenCount":"unlimited"`)
	assert.Contains(t, rec.Body.String(), `"nextRegeneration":null`)
}

func TestImprovePrompt(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)
	rec := f.do(nethttp.MethodPost, "/api/v1/prompts/improve", `{"prompt":"a fox"}`, authed)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"prompt":"a fox at golden hour"`)
}

func TestHealthcheck(t *testing.T) {
	f := newFixture(t, service.TokenCount{}, nil)

	rec := f.do(nethttp.MethodGet, "/api/healthcheck", "", nil)
	assert.Equal(t, nethttp.StatusForbidden, rec.Code)

	rec = f.do(nethttp.MethodPost, "/api/healthcheck", "", map[string]string{"Authorization": "hc-token"})
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isDatabaseHealthy":true}`, rec.Body.String())

	f = newFixture(t, service.TokenCount{}, errors.New("db down"))
	rec = f.do(nethttp.MethodGet, "/api/healthcheck", "", map[string]string{"Authorization": "hc-token"})
	assert.JSONEq(t, `{"isDatabaseHealthy":false}`, rec.Body.String())

	rec = f.do(nethttp.MethodGet, "/healthz", "", nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
}
