package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistgateway/internal/assist"
)

type imageRequest struct {
	Image string `json:"image"`
}

type speakRequest struct {
	Text string `json:"text"`
}

type AssistHandler struct {
	svc *assist.Service
}

func NewAssistHandler(svc *assist.Service) *AssistHandler {
	return &AssistHandler{svc: svc}
}

// DetectObjects returns the labels of every detected object.
func (h *AssistHandler) DetectObjects(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	labels, err := h.svc.DetectObjects(r.Context(), req.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"objects_detected": labels})
}

// DescribeScene returns a short natural-language description of the image.
func (h *AssistHandler) DescribeScene(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	desc, err := h.svc.DescribeScene(r.Context(), req.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"scene_description": desc})
}

// Speak converts text to an MP3 attachment.
func (h *AssistHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.Speak(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "speech-"+uuid.NewString()+".mp3"))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Audio)
}

// ReadText returns the text recognized in the image.
func (h *AssistHandler) ReadText(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	text, err := h.svc.ReadText(r.Context(), req.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"extracted_text": text})
}
