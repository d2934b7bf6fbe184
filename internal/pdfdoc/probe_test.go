package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var encryptPad = strings.Repeat("AB", 32)

// buildPDF writes a minimal PDF with the given number of blank pages and a
// valid cross-reference table. With encrypted set, the trailer references a
// standard security handler whose user password is not empty.
func buildPDF(pages int, encrypted bool) []byte {
	if !encrypted {
		return buildEncryptedPDF(pages, "")
	}
	return buildEncryptedPDF(pages, fmt.Sprintf("<< /Filter /Standard /V 1 /R 2 /O <%s> /U <%s> /P -4 >>", encryptPad, encryptPad))
}

// buildEncryptedPDF is buildPDF with an explicit encryption dictionary.
// An empty dict leaves the file unencrypted.
func buildEncryptedPDF(pages int, dict string) []byte {
	var objs []string
	kids := make([]string, pages)
	for i := 0; i < pages; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	encryptRef := ""
	if dict != "" {
		objs = append(objs, dict)
		encryptRef = fmt.Sprintf(" /Encrypt %d 0 R /ID [<00112233445566778899AABBCCDDEEFF> <00112233445566778899AABBCCDDEEFF>]", len(objs))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, encryptRef, xref)
	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		kind  ProbeKind
		pages int
	}{
		{"plain", buildPDF(2, false), ProbeReady, 2},
		{"encrypted", buildPDF(1, true), ProbeNeedsPassword, 0},
		{"empty", nil, ProbeInvalid, 0},
		{"not a pdf", []byte("hello, world"), ProbeInvalid, 0},
		{"truncated", buildPDF(1, false)[:40], ProbeInvalid, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Probe(tt.data)
			assert.Equal(t, tt.kind, res.Kind, "reason: %s", res.Reason)
			assert.Equal(t, tt.pages, res.Pages)
			if tt.kind == ProbeInvalid {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestProbeKindString(t *testing.T) {
	assert.Equal(t, "needsPassword", ProbeNeedsPassword.String())
	assert.Equal(t, "ProbeKind(9)", ProbeKind(9).String())
}

type MockInspector struct {
	Result ProbeResult
	Calls  int
}

func (m *MockInspector) Inspect(data []byte) ProbeResult {
	m.Calls++
	return m.Result
}

func TestProber_UnsupportedEncryptionUsesInspector(t *testing.T) {
	aes256 := buildEncryptedPDF(1, fmt.Sprintf("<< /Filter /Standard /V 5 /R 6 /O <%s> /U <%s> /P -4 >>", encryptPad, encryptPad))

	t.Run("owner password only", func(t *testing.T) {
		inspector := &MockInspector{Result: ProbeResult{Kind: ProbeReady, Pages: 1}}
		res := (&Prober{Inspector: inspector}).Probe(aes256)

		assert.Equal(t, ProbeReady, res.Kind)
		assert.Equal(t, 1, res.Pages)
		assert.Equal(t, 1, inspector.Calls)
	})

	t.Run("user password", func(t *testing.T) {
		inspector := &MockInspector{Result: ProbeResult{Kind: ProbeNeedsPassword}}
		res := (&Prober{Inspector: inspector}).Probe(aes256)

		assert.Equal(t, ProbeNeedsPassword, res.Kind)
	})

	t.Run("no inspector", func(t *testing.T) {
		res := (&Prober{}).Probe(aes256)

		assert.Equal(t, ProbeInvalid, res.Kind)
		assert.Contains(t, res.Reason, "V=5")
	})
}

func TestProber_MalformedEncryptionIsInvalid(t *testing.T) {
	broken := buildEncryptedPDF(1, "<< /Filter /Standard /V 1 /R 2 /O <AB> /U <AB> /P -4 >>")
	inspector := &MockInspector{Result: ProbeResult{Kind: ProbeReady}}

	res := (&Prober{Inspector: inspector}).Probe(broken)

	assert.Equal(t, ProbeInvalid, res.Kind)
	assert.Contains(t, res.Reason, "encryption parameters")
	assert.Zero(t, inspector.Calls)
}

func TestProber_WrongPasswordSkipsInspector(t *testing.T) {
	inspector := &MockInspector{Result: ProbeResult{Kind: ProbeReady}}

	res := (&Prober{Inspector: inspector}).Probe(buildPDF(1, true))

	assert.Equal(t, ProbeNeedsPassword, res.Kind)
	assert.Zero(t, inspector.Calls)
}

func TestClassifyPDFInfo(t *testing.T) {
	exitErr := errors.New("exit status 1")

	res := classifyPDFInfo("Title:  Statement\nPages:          3\nEncrypted:      yes (print:yes copy:no)\n", "", nil)
	assert.Equal(t, ProbeResult{Kind: ProbeReady, Pages: 3}, res)

	res = classifyPDFInfo("", "Command Line Error: Incorrect password\n", exitErr)
	assert.Equal(t, ProbeNeedsPassword, res.Kind)

	res = classifyPDFInfo("", "Syntax Error: Couldn't find trailer dictionary\n", exitErr)
	require.Equal(t, ProbeInvalid, res.Kind)
	assert.Equal(t, "Syntax Error: Couldn't find trailer dictionary", res.Reason)

	res = classifyPDFInfo("", "", exitErr)
	assert.Equal(t, "exit status 1", res.Reason)
}

func TestPopplerInspector_MissingBinary(t *testing.T) {
	res := (&PopplerInspector{Binary: "pdfinfo-does-not-exist-here"}).Inspect(buildPDF(1, false))

	assert.Equal(t, ProbeInvalid, res.Kind)
	assert.Contains(t, res.Reason, "pdfinfo")
}
