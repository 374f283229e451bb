// Package samplestore archives the raw audio samples behind enrolled
// voiceprints, so that enrollments can be audited or re-embedded after a
// model upgrade.
//
// Keys are forward-slash separated and relative to the store root. The
// registry does not depend on the archive: losing it loses replayability,
// not identification.
package samplestore

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
)

// ErrNotExist is returned (wrapped) when a sample key does not exist.
var ErrNotExist = os.ErrNotExist

// Store archives raw audio samples. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores a sample under key, overwriting any previous content.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the sample stored under key.
	// If the key does not exist, an error wrapping [ErrNotExist] is
	// returned.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the sample under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a sample is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// SampleKey builds the archive key for one voiceprint's source audio:
// {identityID}/{seq}{ext}. The extension is taken from the original
// upload name, lowercased; unnamed clips get ".bin".
func SampleKey(identityID string, seq int, uploadName string) string {
	ext := strings.ToLower(path.Ext(uploadName))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%04d%s", identityID, seq, ext)
}
