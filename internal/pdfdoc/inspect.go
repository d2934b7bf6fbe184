package pdfdoc

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultInfoBinary = "pdfinfo"
	inspectTimeout    = 30 * time.Second
)

// PopplerInspector asks poppler's pdfinfo whether a file opens without a
// password. poppler reads every standard security handler revision.
type PopplerInspector struct {
	// Binary is the pdfinfo executable; empty means look it up on PATH.
	Binary string
}

// NewPopplerInspector returns an inspector using pdfinfo from PATH.
func NewPopplerInspector() *PopplerInspector {
	return &PopplerInspector{Binary: defaultInfoBinary}
}

// Inspect runs pdfinfo on data without a password.
func (p *PopplerInspector) Inspect(data []byte) ProbeResult {
	bin := p.Binary
	if bin == "" {
		bin = defaultInfoBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return ProbeResult{Kind: ProbeInvalid, Reason: "unsupported PDF encryption: install poppler (pdfinfo) to open this file"}
	}

	tempDir, err := os.MkdirTemp("", "statement-probe-*")
	if err != nil {
		return ProbeResult{Kind: ProbeInvalid, Reason: err.Error()}
	}
	defer os.RemoveAll(tempDir)

	input := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return ProbeResult{Kind: ProbeInvalid, Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), inspectTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	return classifyPDFInfo(stdout.String(), stderr.String(), runErr)
}

var pagesLine = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// classifyPDFInfo turns pdfinfo's output into a ProbeResult. poppler reports
// a required user password as "Command Line Error: Incorrect password".
func classifyPDFInfo(stdout, stderr string, runErr error) ProbeResult {
	if runErr != nil {
		msg := strings.TrimSpace(stderr)
		if isPasswordFailure(msg) {
			return ProbeResult{Kind: ProbeNeedsPassword}
		}
		if msg == "" {
			msg = runErr.Error()
		}
		return ProbeResult{Kind: ProbeInvalid, Reason: msg}
	}

	res := ProbeResult{Kind: ProbeReady}
	if m := pagesLine.FindStringSubmatch(stdout); m != nil {
		res.Pages, _ = strconv.Atoi(m[1])
	}
	return res
}
