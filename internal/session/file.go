package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileStatus is the lifecycle status of one uploaded statement.
type FileStatus string

const (
	// StatusPending means the file has been accepted but not yet probed.
	StatusPending FileStatus = "pending"
	// StatusNeedsPassword means the PDF is encrypted and waits for a password.
	StatusNeedsPassword FileStatus = "needsPassword"
	// StatusReady means the PDF opened without a password.
	StatusReady FileStatus = "ready"
	// StatusProcessing means the file is being rendered and extracted.
	StatusProcessing FileStatus = "processing"
	// StatusSuccess means extraction finished for this file.
	StatusSuccess FileStatus = "success"
	// StatusError means the file failed; ErrorMessage says why.
	StatusError FileStatus = "error"
)

// NonPDFWarning is reported once when any selected file is not a PDF.
const NonPDFWarning = "One or more files were not PDFs and have been ignored."

// StatementFile is the raw file handed over by the user.
type StatementFile struct {
	Name    string
	ModTime time.Time
	Data    []byte
}

// FileID derives the tracker identifier for a file from its name and
// modification time.
func FileID(name string, modTime time.Time) string {
	return fmt.Sprintf("%s-%d", name, modTime.UnixMilli())
}

// IsPDF reports whether name has a .pdf extension, ignoring case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// FilterPDFs splits files into accepted PDFs and a count of rejected entries.
func FilterPDFs(files []StatementFile) (accepted []StatementFile, rejected int) {
	for _, f := range files {
		if IsPDF(f.Name) {
			accepted = append(accepted, f)
			continue
		}
		rejected++
	}
	return accepted, rejected
}

// FileState tracks one statement for the lifetime of a session.
type FileState struct {
	ID           string        `json:"id"`
	File         StatementFile `json:"-"`
	Status       FileStatus    `json:"status"`
	Password     string        `json:"-"`
	ErrorMessage string        `json:"errorMessage,omitempty"`

	// Encrypted is set once the probe found the file password protected.
	Encrypted bool `json:"encrypted"`
}

// Name returns the original filename.
func (f FileState) Name() string {
	return f.File.Name
}

// HasPassword reports whether a non-empty password has been supplied.
func (f FileState) HasPassword() bool {
	return f.Password != ""
}

// Convertible reports whether the file may be rendered now: it is ready, or it
// needs a password and one has been supplied.
func (f FileState) Convertible() bool {
	switch f.Status {
	case StatusReady:
		return true
	case StatusNeedsPassword:
		return f.HasPassword()
	}
	return false
}
