package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/imageio"
)

// TesseractConfig holds configuration for the local tesseract binary.
type TesseractConfig struct {
	BinPath     string // default: "tesseract" looked up on PATH
	Language    string // default: "eng"
	PageSegMode int    // tesseract --psm; 0 leaves the binary default
}

// Tesseract runs the tesseract CLI as a subprocess, piping a PNG through stdin and reading
// the text back from stdout. Each call gets its own process, so the engine is safe for
// concurrent use.
type Tesseract struct {
	cfg TesseractConfig
}

func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.BinPath == "" {
		cfg.BinPath = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{cfg: cfg}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) args() []string {
	args := []string{"stdin", "stdout", "-l", t.cfg.Language}
	if t.cfg.PageSegMode > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PageSegMode))
	}
	return args
}

func (t *Tesseract) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	const op = "tesseract"

	png, err := imageio.EncodePNG(img)
	if err != nil {
		return "", apperr.Internal(op, err)
	}

	cmd := exec.CommandContext(ctx, t.cfg.BinPath, t.args()...)
	cmd.Stdin = bytes.NewReader(png)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A killed process reports "signal: killed"; surface the deadline instead.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", apperr.Unavailable(op, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", apperr.UpstreamError(op,
				fmt.Errorf("tesseract exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())))
		}
		// The process never started: missing binary or bad path.
		return "", apperr.Unavailable(op, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Available reports whether the binary can be started.
func (t *Tesseract) Available(ctx context.Context) error {
	if _, err := exec.LookPath(t.cfg.BinPath); err != nil {
		return err
	}
	return exec.CommandContext(ctx, t.cfg.BinPath, "--version").Run()
}
