// Package pdfdoc inspects and renders PDF statements.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ProbeKind classifies the outcome of probing a PDF.
type ProbeKind int

const (
	// ProbeReady means the document opens without a password.
	ProbeReady ProbeKind = iota
	// ProbeNeedsPassword means the document has a user password.
	ProbeNeedsPassword
	// ProbeInvalid means the bytes could not be read as a PDF.
	ProbeInvalid
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeReady:
		return "ready"
	case ProbeNeedsPassword:
		return "needsPassword"
	case ProbeInvalid:
		return "invalid"
	}
	return fmt.Sprintf("ProbeKind(%d)", int(k))
}

// ProbeResult is the explicit outcome of Probe.
// Pages is set for ProbeReady, Reason for ProbeInvalid.
type ProbeResult struct {
	Kind   ProbeKind
	Pages  int
	Reason string
}

// Inspector opens a PDF without a password using a reader other than the
// built-in one. It is consulted for encryption schemes the built-in reader
// cannot decode, such as AES-256.
type Inspector interface {
	Inspect(data []byte) ProbeResult
}

// Prober classifies PDFs as readable, password protected or broken.
type Prober struct {
	// Inspector handles unsupported encryption schemes. When nil such files
	// probe as invalid.
	Inspector Inspector
}

// NewProber returns a Prober that falls back to poppler's pdfinfo.
func NewProber() *Prober {
	return &Prober{Inspector: NewPopplerInspector()}
}

var defaultProber = NewProber()

// Probe classifies data with the default Prober.
func Probe(data []byte) ProbeResult {
	return defaultProber.Probe(data)
}

// Probe opens data without a password and reports whether it is readable,
// encrypted or broken. It never panics.
func (p *Prober) Probe(data []byte) (res ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ProbeResult{Kind: ProbeInvalid, Reason: fmt.Sprintf("malformed PDF: %v", r)}
		}
	}()

	if len(data) == 0 {
		return ProbeResult{Kind: ProbeInvalid, Reason: "empty file"}
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	switch {
	case err == nil:
		return ProbeResult{Kind: ProbeReady, Pages: r.NumPage()}
	case errors.Is(err, pdf.ErrInvalidPassword):
		return ProbeResult{Kind: ProbeNeedsPassword}
	case isUnsupportedEncryption(err):
		if p.Inspector == nil {
			return ProbeResult{Kind: ProbeInvalid, Reason: err.Error()}
		}
		return p.Inspector.Inspect(data)
	default:
		return ProbeResult{Kind: ProbeInvalid, Reason: err.Error()}
	}
}

// isUnsupportedEncryption matches the reader's "unsupported PDF: encryption ..."
// errors. Those say nothing about whether a user password exists.
func isUnsupportedEncryption(err error) bool {
	return strings.HasPrefix(err.Error(), "unsupported PDF: encryption")
}
