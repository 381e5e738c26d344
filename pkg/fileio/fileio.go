// Package fileio reads a source file into a byte buffer for the sender
// and writes a received byte buffer out for the receiver. It is
// afero-backed so callers can substitute an in-memory filesystem in
// tests instead of touching disk.
package fileio

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ReadAll reads path in full through fs and returns its contents.
func ReadAll(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input file %s", path)
	}
	return data, nil
}

// WriteAll creates (or truncates) path through fs and writes data to it.
func WriteAll(fs afero.Fs, path string, data []byte) error {
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "create output file %s", path)
	}
	return nil
}

// Size stats path through fs and returns its size in bytes, used by the
// receiver CLI to compute the loss-rate report against the original
// file without reading its content.
func Size(fs afero.Fs, path string) (int, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat reference file %s", path)
	}
	return int(info.Size()), nil
}
