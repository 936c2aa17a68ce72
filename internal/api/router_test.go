package api

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nikhilbhutani/assistgateway/internal/api/handlers"
	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/assist"
	"github.com/nikhilbhutani/assistgateway/internal/config"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/detect"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/tts"
)

type stubDetector struct{ labels []string }

func (s stubDetector) Name() string { return "stub" }

func (s stubDetector) Detect(context.Context, image.Image) ([]detect.Detection, error) {
	out := make([]detect.Detection, len(s.labels))
	for i, l := range s.labels {
		out[i] = detect.Detection{Label: l}
	}
	return out, nil
}

type stubVision struct{ err error }

func (s stubVision) DescribeScene(context.Context, llm.Image) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "A sidewalk with a parked bicycle.", nil
}

type stubSpeech struct{}

func (stubSpeech) Name() string { return "stub" }

func (stubSpeech) Synthesize(_ context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	return &tts.SynthesisResult{Audio: []byte("ID3" + req.Input), ContentType: tts.ContentTypeMP3}, nil
}

type stubOCR struct{ err error }

func (s stubOCR) Name() string { return "stub" }

func (s stubOCR) Recognize(context.Context, *image.Gray) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "EXIT\n", nil
}

type stubGateway struct{ llm.Gateway }

func (stubGateway) ListModels() []llm.ModelInfo {
	return []llm.ModelInfo{{Provider: "openai", Model: "gpt-4o-mini"}}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{MaxBodyBytes: 1 << 20, CORSOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func newTestServer(t *testing.T, deps assist.Deps, checks map[string]handlers.Check) *httptest.Server {
	t.Helper()
	rt := NewRouter(testConfig(), assist.NewService(deps, assist.Options{}), stubGateway{}, checks)
	srv := httptest.NewServer(rt.Setup())
	t.Cleanup(func() {
		srv.Close()
		rt.Close()
	})
	return srv
}

func healthyDeps() assist.Deps {
	return assist.Deps{
		Detector: stubDetector{labels: []string{"person", "bicycle"}},
		Vision:   stubVision{},
		Speech:   stubSpeech{},
		OCR:      stubOCR{},
	}
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHome(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if msg, _ := decodeBody(t, resp)["message"].(string); msg == "" {
		t.Fatal("empty welcome message")
	}
}

func TestSuccessfulOperations(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	img := pngBase64(t)

	resp := postJSON(t, srv.URL+"/detect_objects", map[string]string{"image": img})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detect status = %d", resp.StatusCode)
	}
	objects, _ := decodeBody(t, resp)["objects_detected"].([]any)
	if len(objects) != 2 || objects[0] != "person" || objects[1] != "bicycle" {
		t.Fatalf("objects_detected = %v", objects)
	}

	resp = postJSON(t, srv.URL+"/describe_scene", map[string]string{"image": img})
	if got := decodeBody(t, resp)["scene_description"]; got != "A sidewalk with a parked bicycle." {
		t.Fatalf("scene_description = %v", got)
	}

	resp = postJSON(t, srv.URL+"/read_text", map[string]string{"image": img})
	if got := decodeBody(t, resp)["extracted_text"]; got != "EXIT" {
		t.Fatalf("extracted_text = %v", got)
	}
}

func TestDetectObjectsEmptyList(t *testing.T) {
	srv := newTestServer(t, assist.Deps{Detector: stubDetector{}}, nil)
	resp := postJSON(t, srv.URL+"/detect_objects", map[string]string{"image": pngBase64(t)})

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(raw)) != `{"objects_detected":[]}` {
		t.Fatalf("status %d body %s", resp.StatusCode, raw)
	}
}

func TestMissingFieldIs400(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)

	for _, path := range []string{"/detect_objects", "/describe_scene", "/read_text", "/speak"} {
		resp := postJSON(t, srv.URL+path, map[string]string{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
			continue
		}
		body := decodeBody(t, resp)
		if body["kind"] != string(apperr.KindInvalidInput) || body["error"] == "" {
			t.Errorf("%s: envelope = %v", path, body)
		}
	}
}

func TestMalformedJSONIs400(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	resp, err := http.Post(srv.URL+"/speak", "application/json", strings.NewReader(`{"text":`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestOversizedBodyIs400(t *testing.T) {
	rt := NewRouter(testConfig(), assist.NewService(healthyDeps(), assist.Options{}), nil, nil)
	defer rt.Close()

	body := `{"image":"` + strings.Repeat("A", 2<<20) + `"}`
	rec := httptest.NewRecorder()
	rt.Setup().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect_objects", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "exceeds") {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestNonImagePayload(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	notAnImage := base64.StdEncoding.EncodeToString([]byte("plain text is not a picture"))

	for _, path := range []string{"/detect_objects", "/read_text", "/describe_scene"} {
		resp := postJSON(t, srv.URL+path, map[string]string{"image": notAnImage})
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusBadRequest || body["kind"] != string(apperr.KindDecodeFailure) {
			t.Errorf("%s: status %d envelope %v", path, resp.StatusCode, body)
		}
	}
}

// hugePNGBase64 encodes a PNG whose header declares 60000x60000 RGBA pixels with an empty
// pixel stream.
func hugePNGBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		buf.WriteString(typ)
		buf.Write(data)
		binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], 60000)
	binary.BigEndian.PutUint32(ihdr[4:], 60000)
	ihdr[8], ihdr[9] = 8, 6
	chunk("IHDR", ihdr)
	var idat bytes.Buffer
	if err := zlib.NewWriter(&idat).Close(); err != nil {
		t.Fatal(err)
	}
	chunk("IDAT", idat.Bytes())
	chunk("IEND", nil)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHugeImageHeaderIs400(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	huge := hugePNGBase64(t)

	for _, path := range []string{"/detect_objects", "/read_text"} {
		resp := postJSON(t, srv.URL+path, map[string]string{"image": huge})
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusBadRequest || body["kind"] != string(apperr.KindDecodeFailure) {
			t.Errorf("%s: status %d envelope %v", path, resp.StatusCode, body)
		}
	}
}

func TestConfiguredPixelLimit(t *testing.T) {
	rt := NewRouter(testConfig(), assist.NewService(healthyDeps(), assist.Options{MaxImagePixels: 50}), nil, nil)
	defer rt.Close()

	body, _ := json.Marshal(map[string]string{"image": pngBase64(t)})
	rec := httptest.NewRecorder()
	rt.Setup().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect_objects", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "exceed limit") {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

// speakFrom sends /speak with a forwarded-for header from a fixed socket address.
func speakFrom(h http.Handler, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(`{"text":"hi"}`))
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestForwardedForIgnoredByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
	rt := NewRouter(cfg, assist.NewService(healthyDeps(), assist.Options{}), nil, nil)
	defer rt.Close()
	h := rt.Setup()

	var codes []int
	for i := range 3 {
		codes = append(codes, speakFrom(h, fmt.Sprintf("203.0.113.%d", i+1)))
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, rotating X-Forwarded-For must not reset the limit", codes)
	}
}

func TestForwardedForHonoredBehindTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustProxy = true
	cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	rt := NewRouter(cfg, assist.NewService(healthyDeps(), assist.Options{}), nil, nil)
	defer rt.Close()
	h := rt.Setup()

	for i := range 3 {
		if code := speakFrom(h, fmt.Sprintf("203.0.113.%d", i+1)); code != http.StatusOK {
			t.Fatalf("client %d: status %d", i+1, code)
		}
	}
	if code := speakFrom(h, "203.0.113.1"); code != http.StatusTooManyRequests {
		t.Fatalf("repeat client: status %d, want 429", code)
	}
}

func TestSpeakReturnsAudio(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	resp := postJSON(t, srv.URL+"/speak", map[string]string{"text": "hello"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("Content-Type = %q", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="speech-`) || !strings.HasSuffix(cd, `.mp3"`) {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	audio, _ := io.ReadAll(resp.Body)
	if len(audio) == 0 {
		t.Fatal("empty audio")
	}
}

func TestConcurrentSpeakIsolated(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)

	texts := []string{"first message", "second message"}
	audio := make([]string, len(texts))
	names := make([]string, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _ := json.Marshal(map[string]string{"text": text})
			resp, err := http.Post(srv.URL+"/speak", "application/json", bytes.NewReader(data))
			if err != nil {
				t.Error(err)
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			audio[i] = string(b)
			names[i] = resp.Header.Get("Content-Disposition")
		}()
	}
	wg.Wait()

	for i, text := range texts {
		if audio[i] != "ID3"+text {
			t.Errorf("request %d got audio %q", i, audio[i])
		}
	}
	if names[0] == names[1] {
		t.Errorf("both responses share filename %q", names[0])
	}
}

func TestCollaboratorOutage(t *testing.T) {
	down := apperr.Unavailable("stub", errors.New("connection refused"))
	srv := newTestServer(t, assist.Deps{Vision: stubVision{err: down}, OCR: stubOCR{err: down}}, nil)
	img := pngBase64(t)

	for _, path := range []string{"/describe_scene", "/read_text"} {
		resp := postJSON(t, srv.URL+path, map[string]string{"image": img})
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusBadGateway || body["kind"] != string(apperr.KindUpstreamUnavailable) {
			t.Errorf("%s: status %d envelope %v", path, resp.StatusCode, body)
		}
		if strings.Contains(body["error"].(string), "connection refused") {
			t.Errorf("%s: cause leaked to client: %v", path, body["error"])
		}
	}
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), map[string]handlers.Check{
		"detector": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	checks, _ := decodeBody(t, resp)["checks"].(map[string]any)
	if checks["detector"] != "ok" || !strings.HasPrefix(checks["redis"].(string), "unhealthy") {
		t.Fatalf("checks = %v", checks)
	}
}

func TestModels(t *testing.T) {
	srv := newTestServer(t, healthyDeps(), nil)
	resp, err := http.Get(srv.URL + "/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	models, _ := decodeBody(t, resp)["models"].([]any)
	if len(models) != 1 {
		t.Fatalf("models = %v", models)
	}
}
