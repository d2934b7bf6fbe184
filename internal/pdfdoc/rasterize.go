package pdfdoc

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// RenderScale is the fixed render scale; 1.0 is 72 DPI.
	RenderScale = 2.0
	baseDPI     = 72

	defaultBinary = "pdftoppm"
	pngMIMEType   = "image/png"
)

var (
	// ErrIncorrectPassword is returned when the supplied password does not open the file.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrRendererUnavailable is returned when the renderer binary is not installed.
	ErrRendererUnavailable = errors.New("pdf renderer unavailable: install poppler (pdftoppm)")
)

// RenderError carries the renderer's own message, which is shown to users
// verbatim.
type RenderError struct {
	Msg string
	Err error
}

func (e *RenderError) Error() string { return e.Msg }

func (e *RenderError) Unwrap() error { return e.Err }

// PageImage is one rendered page.
type PageImage struct {
	Page     int
	MIMEType string
	Data     []byte
}

// Base64 returns the image as standard base64 without a data URL prefix.
func (p PageImage) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL returns the image as a data URL.
func (p PageImage) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + p.Base64()
}

// Rasterizer renders PDF pages to PNG with poppler's pdftoppm.
type Rasterizer struct {
	// Binary is the pdftoppm executable; empty means look it up on PATH.
	Binary string
	// Scale defaults to RenderScale.
	Scale float64
}

// NewRasterizer returns a Rasterizer using pdftoppm at the fixed render scale.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{Binary: defaultBinary, Scale: RenderScale}
}

// IsAvailable reports whether the renderer binary can be found.
func (r *Rasterizer) IsAvailable() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}

// DPI returns the render resolution derived from Scale.
func (r *Rasterizer) DPI() int {
	scale := r.Scale
	if scale <= 0 {
		scale = RenderScale
	}
	return int(scale * baseDPI)
}

// Render converts every page of data to a PNG image, in page order.
// password may be empty for unencrypted files.
func (r *Rasterizer) Render(ctx context.Context, data []byte, password string) ([]PageImage, error) {
	bin, err := exec.LookPath(r.binary())
	if err != nil {
		return nil, ErrRendererUnavailable
	}

	tempDir, err := os.MkdirTemp("", "statement-render-*")
	if err != nil {
		return nil, fmt.Errorf("Render: failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	input := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("Render: failed to write input: %w", err)
	}

	args := []string{"-png", "-r", strconv.Itoa(r.DPI())}
	if password != "" {
		args = append(args, "-upw", password)
	}
	args = append(args, input, filepath.Join(tempDir, "page"))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if isPasswordFailure(msg) {
			return nil, ErrIncorrectPassword
		}
		if msg == "" {
			msg = err.Error()
		}
		return nil, &RenderError{Msg: msg, Err: err}
	}

	return collectPages(tempDir)
}

func (r *Rasterizer) binary() string {
	if r.Binary == "" {
		return defaultBinary
	}
	return r.Binary
}

// isPasswordFailure matches poppler's "Command Line Error: Incorrect password".
func isPasswordFailure(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "password")
}

var pageFilePattern = regexp.MustCompile(`^page-(\d+)\.png$`)

// collectPages reads page-N.png files from dir sorted by N. pdftoppm zero pads
// N to the width of the page count, so the number is parsed rather than the
// name compared.
func collectPages(dir string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("collectPages: %w", err)
	}

	var pages []PageImage
	for _, e := range entries {
		m := pageFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("collectPages: failed to read %s: %w", e.Name(), err)
		}
		pages = append(pages, PageImage{Page: n, MIMEType: pngMIMEType, Data: data})
	}

	if len(pages) == 0 {
		return nil, errors.New("collectPages: renderer produced no pages")
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}
