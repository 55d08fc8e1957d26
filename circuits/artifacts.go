// Package circuits holds what the proving circuits share: the helpers used
// inside circuit definitions and the artifacts (proving parameter blobs)
// generated offline for them.
package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/types"
)

// downloadRetries is the number of attempts of a parameters download.
const downloadRetries = 5

// Artifact is a file holding the proving parameters of one circuit. It is
// looked up as Dir/Name and, if missing, downloaded from RemoteURL. When
// Hash is set, the content must match its sha256.
type Artifact struct {
	Name      string
	Dir       string
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// ParamsFileName returns the file name of the parameters of the kind.
func ParamsFileName(kind types.Kind) string {
	return kind.String() + ".params"
}

// NewParamsArtifact returns the artifact of the kind parameters. baseURL and
// hexHash are optional.
func NewParamsArtifact(kind types.Kind, dir, baseURL, hexHash string) (*Artifact, error) {
	a := &Artifact{Name: ParamsFileName(kind), Dir: dir}
	if hexHash != "" {
		h, err := hex.DecodeString(hexHash)
		if err != nil {
			return nil, fmt.Errorf("invalid %s params hash: %w", kind, err)
		}
		a.Hash = h
	}
	if baseURL != "" {
		u, err := url.JoinPath(baseURL, a.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid params url: %w", err)
		}
		a.RemoteURL = u
	}
	return a, nil
}

// Path returns the local path of the artifact.
func (k *Artifact) Path() string {
	return filepath.Join(k.Dir, k.Name)
}

// Load method checks if the artifact content is already loaded, if not, it
// will try to load it from the local storage, downloading it first if it is
// missing and a remote URL is set. The hash, when set, is checked.
func (k *Artifact) Load(ctx context.Context) error {
	if len(k.Content) != 0 {
		return nil
	}
	content, err := k.read()
	if err != nil {
		return err
	}
	if content == nil {
		if k.RemoteURL == "" {
			return fmt.Errorf("artifact %s not found", k.Path())
		}
		if err := k.Download(ctx); err != nil {
			return err
		}
		if content, err = k.read(); err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("no content found")
		}
	}
	k.Content = content
	return nil
}

// Store writes content to the local path and loads it.
func (k *Artifact) Store(content []byte) error {
	if err := os.MkdirAll(k.Dir, 0o755); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	if err := os.WriteFile(k.Path(), content, 0o644); err != nil {
		return fmt.Errorf("error writing file %s: %w", k.Path(), err)
	}
	k.Content = content
	return nil
}

// Sha256 returns the hex encoded sha256 of the loaded content.
func (k *Artifact) Sha256() string {
	sum := sha256.Sum256(k.Content)
	return hex.EncodeToString(sum[:])
}

func (k *Artifact) read() ([]byte, error) {
	content, err := os.ReadFile(k.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", k.Path(), err)
	}
	if len(k.Hash) > 0 {
		fileHash := sha256.Sum256(content)
		if !bytes.Equal(fileHash[:], k.Hash) {
			return nil, fmt.Errorf("hash mismatch for file %s: expected %x, got %x", k.Path(), k.Hash, fileHash)
		}
	}
	return content, nil
}

// progressReader wraps an io.Reader and keeps track of the total bytes read.
type progressReader struct {
	reader        io.Reader
	total         int64 // updated atomically
	contentLength int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

// Download fetches the artifact from its remote URL into Dir, resuming a
// previous partial download if there is one.
func (k *Artifact) Download(ctx context.Context) error {
	if k.RemoteURL == "" {
		return fmt.Errorf("remote url not provided")
	}
	if err := os.MkdirAll(k.Dir, 0o755); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	path := k.Path()
	partialPath := path + ".partial"
	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, k.RemoteURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	client := retryablehttp.NewClient()
	client.RetryMax = downloadRetries
	client.Logger = nil
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("error downloading file %s: http status: %d", k.RemoteURL, res.StatusCode)
	}
	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if startByte > 0 && res.StatusCode == http.StatusPartialContent {
		fileMode = os.O_APPEND | os.O_WRONLY
	}
	fd, err := os.OpenFile(partialPath, fileMode, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	pr := &progressReader{
		reader:        res.Body,
		contentLength: res.ContentLength + startByte,
	}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(fd, pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			if err := fd.Sync(); err != nil {
				return fmt.Errorf("error syncing artifact file: %w", err)
			}
			// read() checks the hash once the file is in place
			if err := os.Rename(partialPath, path); err != nil {
				return fmt.Errorf("error renaming file: %w", err)
			}
			return nil
		case <-ticker.C:
			total := atomic.LoadInt64(&pr.total)
			var percentage float64
			if pr.contentLength > 0 {
				percentage = (float64(total) / float64(pr.contentLength)) * 100
			}
			log.Debugw("download artifact", "url", k.RemoteURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", fmt.Sprintf("%.2f%%", percentage))
		}
	}
}
