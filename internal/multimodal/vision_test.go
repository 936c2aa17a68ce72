package multimodal

import (
	"context"
	"errors"
	"testing"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
)

type recordingGateway struct {
	llm.Gateway
	req  llm.ChatRequest
	resp *llm.ChatResponse
	err  error
}

func (g *recordingGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	g.req = req
	return g.resp, g.err
}

func TestDescribeSceneSendsFixedInstructions(t *testing.T) {
	gw := &recordingGateway{resp: &llm.ChatResponse{Content: "A staircase going down.", Provider: "openai"}}
	v := NewVisionService(gw)

	img := llm.Image{Data: []byte("\xff\xd8\xff"), MimeType: "image/jpeg"}
	got, err := v.DescribeScene(context.Background(), img)
	if err != nil {
		t.Fatalf("DescribeScene() error: %v", err)
	}
	if got != "A staircase going down." {
		t.Fatalf("description = %q", got)
	}

	msgs := gw.req.Messages
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != sceneSystemPrompt {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != sceneUserPrompt {
		t.Errorf("user message = %+v", msgs[1])
	}
	if len(msgs[1].Images) != 1 || string(msgs[1].Images[0].Data) != "\xff\xd8\xff" {
		t.Errorf("raw image bytes not forwarded: %+v", msgs[1].Images)
	}
}

func TestExtractTextTrims(t *testing.T) {
	gw := &recordingGateway{resp: &llm.ChatResponse{Content: "\n  EXIT  \n"}}
	got, err := NewVisionService(gw).ExtractText(context.Background(), llm.Image{Data: []byte("png"), MimeType: "image/png"})
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if got != "EXIT" {
		t.Fatalf("text = %q", got)
	}
}

func TestVisionServiceErrors(t *testing.T) {
	v := NewVisionService(&recordingGateway{})
	if _, err := v.DescribeScene(context.Background(), llm.Image{}); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("empty image: kind = %s", apperr.KindOf(err))
	}

	outage := apperr.Unavailable("openai chat", errors.New("connection refused"))
	v = NewVisionService(&recordingGateway{err: outage})
	_, err := v.DescribeScene(context.Background(), llm.Image{Data: []byte("x"), MimeType: "image/png"})
	if !errors.Is(err, outage) {
		t.Fatalf("err = %v", err)
	}
}
