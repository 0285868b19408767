package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// FileDigest returns the hex sha256 digest of a file's contents.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint computes digests for a set of target paths.
// Missing targets are reported as an error naming the first missing path.
func Fingerprint(targets []string) (map[string]string, error) {
	fps := make(map[string]string, len(targets))
	for _, t := range targets {
		d, err := FileDigest(t)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", t, err)
		}
		fps[t] = d
	}
	return fps, nil
}

// identityDigest hashes the identity components of a signature into the
// store key. The parts are length-prefixed so that no two distinct inputs
// collapse into the same byte stream.
func identityDigest(parts ...[]string) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%d:", len(part))
		for _, p := range part {
			fmt.Fprintf(h, "%d:%s", len(p), p)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// varsDigest hashes signature-variable values deterministically.
func varsDigest(vars map[string]any) string {
	if len(vars) == 0 {
		return ""
	}
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s=%v;", n, vars[n])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
