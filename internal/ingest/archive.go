package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrNoCSV means none of the known CSV locations exist in the archive.
var ErrNoCSV = errors.New("no CSV found in the archive")

// member locates a CSV inside a zip that is itself nested in the download.
type member struct {
	nested string
	csv    string
}

// The UCI archive ships the dataset twice; the "additional" variant has more
// features and is preferred.
var knownMembers = []member{
	{nested: "bank-additional.zip", csv: "bank-additional/bank-additional-full.csv"},
	{nested: "bank.zip", csv: "bank-full.csv"},
}

// ExtractCSV returns the path and contents of the first known CSV found in
// archive.
func ExtractCSV(archive []byte) (string, []byte, error) {
	outer, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to open archive: %w", err)
	}

	for _, m := range knownMembers {
		nestedBytes, err := readMember(outer, m.nested)
		if errors.Is(err, errMissing) {
			continue
		}
		if err != nil {
			return "", nil, err
		}

		inner, err := zip.NewReader(bytes.NewReader(nestedBytes), int64(len(nestedBytes)))
		if err != nil {
			return "", nil, fmt.Errorf("failed to open %s: %w", m.nested, err)
		}

		data, err := readMember(inner, m.csv)
		if errors.Is(err, errMissing) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return m.nested + "/" + m.csv, data, nil
	}

	return "", nil, ErrNoCSV
}

var errMissing = errors.New("member not found")

func readMember(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, errMissing
}
