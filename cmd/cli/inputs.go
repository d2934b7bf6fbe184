package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/statement-converter/internal/gcs"
	"github.com/dvloznov/statement-converter/internal/session"
)

// passwordFlag collects repeated -password name=secret values keyed by
// file base name.
type passwordFlag map[string]string

func (p *passwordFlag) String() string {
	names := make([]string, 0, len(*p))
	for name := range *p {
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

func (p *passwordFlag) Set(value string) error {
	name, secret, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=password, got %q", value)
	}
	if *p == nil {
		*p = make(passwordFlag)
	}
	(*p)[filepath.Base(name)] = secret
	return nil
}

func hasURI(args []string) bool {
	for _, a := range args {
		if gcs.IsURI(a) {
			return true
		}
	}
	return false
}

// loadInputs reads each argument from disk or, for gs:// URIs, from store.
// The file's modification time feeds the tracker ID.
func loadInputs(ctx context.Context, store gcs.Storage, args []string) ([]session.StatementFile, error) {
	files := make([]session.StatementFile, 0, len(args))
	for _, arg := range args {
		if gcs.IsURI(arg) {
			if store == nil {
				return nil, fmt.Errorf("loadInputs: %s: no storage client", arg)
			}
			obj, err := store.Fetch(ctx, arg)
			if err != nil {
				return nil, fmt.Errorf("loadInputs: %w", err)
			}
			files = append(files, session.StatementFile{
				Name:    obj.Name,
				ModTime: obj.Updated,
				Data:    obj.Data,
			})
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("loadInputs: %w", err)
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("loadInputs: %w", err)
		}
		files = append(files, session.StatementFile{
			Name:    filepath.Base(arg),
			ModTime: info.ModTime(),
			Data:    data,
		})
	}
	return files, nil
}

// applyPasswords hands the supplied passwords to the tracker and returns the
// names of encrypted files still lacking one.
func applyPasswords(tracker *session.Tracker, files []session.FileState, passwords passwordFlag) []string {
	var missing []string
	for _, f := range files {
		if f.Status != session.StatusNeedsPassword {
			continue
		}
		pw, ok := passwords[f.Name()]
		if !ok || pw == "" {
			missing = append(missing, f.Name())
			continue
		}
		if err := tracker.SetPassword(f.ID, pw); err != nil {
			missing = append(missing, f.Name())
		}
	}
	return missing
}
