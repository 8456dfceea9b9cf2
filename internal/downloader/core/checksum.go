package core

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	stdErrors "errors"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// DigestAlgorithm names a supported content digest.
type DigestAlgorithm string

const (
	DigestMD5    DigestAlgorithm = "md5"
	DigestSHA1   DigestAlgorithm = "sha1"
	DigestSHA256 DigestAlgorithm = "sha256"
)

// AlgorithmForDigest infers the algorithm from the length of a hex digest.
func AlgorithmForDigest(digest string) (DigestAlgorithm, bool) {
	switch len(strings.TrimSpace(digest)) {
	case hex.EncodedLen(md5.Size):
		return DigestMD5, true
	case hex.EncodedLen(sha1.Size):
		return DigestSHA1, true
	case hex.EncodedLen(sha256.Size):
		return DigestSHA256, true
	default:
		return "", false
	}
}

func (a DigestAlgorithm) newHash() (hash.Hash, error) {
	switch a {
	case DigestMD5:
		return md5.New(), nil
	case DigestSHA1:
		return sha1.New(), nil
	case DigestSHA256:
		return sha256.New(), nil
	default:
		return nil, errors.Errorf("unsupported digest algorithm: %q", a)
	}
}

// CalculateDigest streams r through the algorithm and returns the lower-case hex digest.
func CalculateDigest(r io.Reader, algo DigestAlgorithm) (string, error) {
	hasher, err := algo.newHash()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return "", errors.Wrap(err, "failed to read data for checksum")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileDigest opens the supplied path via the provided filesystem and returns its digest.
func FileDigest(fs FileSystem, filePath string, algo DigestAlgorithm) (string, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open file: %s", filePath)
	}
	defer file.Close()

	return CalculateDigest(file, algo)
}

// IntegrityResult says which check, if any, rejected a file.
type IntegrityResult int

const (
	IntegrityOK IntegrityResult = iota
	IntegrityMissing
	IntegritySizeMismatch
	IntegrityDigestMismatch
	IntegrityUnreadable
)

// String renders the result for logs.
func (r IntegrityResult) String() string {
	switch r {
	case IntegrityOK:
		return "ok"
	case IntegrityMissing:
		return "missing"
	case IntegritySizeMismatch:
		return ReasonSizeMismatch
	case IntegrityDigestMismatch:
		return ReasonChecksumMismatch
	case IntegrityUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// Inspect checks that filePath exists, has expectedSize bytes when a size is
// given and hashes to expectedDigest when a digest is given. The size check
// runs first so a truncated file is rejected without reading it.
func Inspect(fs FileSystem, filePath, expectedDigest string, expectedSize *uint64) IntegrityResult {
	info, err := fs.Stat(filePath)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return IntegrityMissing
		}
		return IntegrityUnreadable
	}
	if info.IsDir() {
		return IntegrityMissing
	}

	if expectedSize != nil && uint64(info.Size()) != *expectedSize {
		return IntegritySizeMismatch
	}

	expected := strings.ToLower(strings.TrimSpace(expectedDigest))
	if expected == "" {
		return IntegrityOK
	}

	algo, ok := AlgorithmForDigest(expected)
	if !ok {
		return IntegrityDigestMismatch
	}

	actual, err := FileDigest(fs, filePath, algo)
	if err != nil {
		return IntegrityUnreadable
	}
	if actual != expected {
		return IntegrityDigestMismatch
	}
	return IntegrityOK
}

// Verify is the boolean form of Inspect shared by the pre-flight skip check
// and the post-transfer verification.
func Verify(fs FileSystem, filePath, expectedDigest string, expectedSize *uint64) bool {
	return Inspect(fs, filePath, expectedDigest, expectedSize) == IntegrityOK
}
