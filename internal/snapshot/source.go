package snapshot

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/saltyorg/triviasearch/internal/httpclient"
)

// MaxSnapshotBytes caps how much a source will read.
const MaxSnapshotBytes = 256 << 20

var (
	// ErrDigestMismatch is returned when a snapshot does not hash to the configured digest.
	ErrDigestMismatch = errors.New("snapshot digest mismatch")
	// ErrTooLarge is returned when a snapshot exceeds MaxSnapshotBytes.
	ErrTooLarge = errors.New("snapshot exceeds size limit")
)

// Source produces the raw snapshot bytes.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// NewSource picks a Source for location: http(s) URLs are downloaded with
// client, file URLs and bare paths are read from disk.
func NewSource(location string, client *http.Client) (Source, error) {
	if location == "" {
		return nil, errors.New("snapshot location is empty")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path; a single-letter scheme is a Windows drive letter.
		return NewFileSource(location), nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPSource(location, client), nil
	case "file":
		return NewFileSource(u.Path), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot scheme %q", u.Scheme)
	}
}

// HTTPSource downloads the snapshot with a GET request.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for rawURL. A nil client gets a trace client
// without a timeout; the loader bounds each fetch through its context.
func NewHTTPSource(rawURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = httpclient.NewTraceClient("snapshot", 0)
	}
	return &HTTPSource{url: rawURL, client: client}
}

func (s *HTTPSource) String() string {
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	return httpclient.RedactURL(u)
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.sqlite3, application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, s.String())
	}
	if resp.ContentLength > MaxSnapshotBytes {
		return nil, ErrTooLarge
	}

	return readLimited(resp.Body)
}

// FileSource reads the snapshot from a local path.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) String() string {
	return s.path
}

// Path returns the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) > MaxSnapshotBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest compares data against a hex BLAKE2b-256 digest.
func VerifyDigest(data []byte, expected string) error {
	want, err := hex.DecodeString(strings.TrimSpace(expected))
	if err != nil || len(want) != blake2b.Size256 {
		return fmt.Errorf("invalid blake2b digest %q", expected)
	}
	sum := blake2b.Sum256(data)
	if subtle.ConstantTimeCompare(sum[:], want) != 1 {
		return fmt.Errorf("%w: got %s", ErrDigestMismatch, hex.EncodeToString(sum[:]))
	}
	return nil
}
