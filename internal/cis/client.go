package cis

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/afero"

	"github.com/jo-hoe/cisclient/internal/common"
	"github.com/jo-hoe/cisclient/internal/config"
	perr "github.com/jo-hoe/cisclient/internal/errors"
)

// Operation labels used in errors and logs.
const (
	OpEnvironment = "environment"
	OpSubmit      = "submit"
	OpStatus      = "status"
	OpDownload    = "download"
	OpRelease     = "release"
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	// TrustCerts disables certificate chain and host name verification.
	TrustCerts bool
	// Fs is where uploads are read from and downloads written to; defaults to the OS filesystem.
	Fs afero.Fs
	// HTTPClient overrides the pooled client, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the CIS client integration API. It is safe for concurrent use;
// all calls share one pooled transport for the life of the process.
type Client struct {
	httpClient   *http.Client
	basePath     string
	apiKey       string
	apiKeyHeader string
	fs           afero.Fs
}

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, perr.Config("base url must not be empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "config", "invalid base url")
	}
	if strings.TrimSpace(opts.APIKeyHeader) == "" {
		return nil, perr.Config("api key header must not be empty")
	}
	basePath, err := url.JoinPath(base, common.APIBasePath)
	if err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "config", "join base path")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.TrustCerts)
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Client{
		httpClient:   hc,
		basePath:     basePath,
		apiKey:       opts.APIKey,
		apiKeyHeader: strings.TrimSpace(opts.APIKeyHeader),
		fs:           fsys,
	}, nil
}

// NewFromConfig creates a Client from the loaded settings.
func NewFromConfig(cfg *config.Config, fsys afero.Fs) (*Client, error) {
	return New(Options{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		APIKeyHeader: cfg.APIKeyHeader,
		TrustCerts:   cfg.TrustCerts,
		Fs:           fsys,
	})
}

func newHTTPClient(trustCerts bool) *http.Client {
	t := cleanhttp.DefaultPooledTransport()
	if trustCerts {
		t.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // #nosec G402 - opt-in via trustCerts for internal deployments
		}
	}
	return &http.Client{Transport: t}
}

// Close releases idle pooled connections; call once at process shutdown.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// BasePath returns the resolved API root, ending in "/".
func (c *Client) BasePath() string { return c.basePath }

// GetEnvironment returns the repositories and global variables visible to the API key.
func (c *Client) GetEnvironment(ctx context.Context) (*Environment, error) {
	resp, err := c.do(ctx, OpEnvironment, http.MethodGet, c.endpoint(common.PathEnvironment), nil, "")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var env Environment
	if err := decodeJSON(resp, &env, OpEnvironment); err != nil {
		return nil, err
	}
	return &env, nil
}

// Submit uploads files to the repository as one job and returns its id.
// Files missing from meta get DemoMetadata.
func (c *Client) Submit(ctx context.Context, repositoryID uuid.UUID, files []string, meta FileMetadata) (JobID, error) {
	if len(files) == 0 {
		return uuid.Nil, perr.New(perr.KindIO, OpSubmit, "no files to submit")
	}
	for _, p := range files {
		fi, err := c.fs.Stat(p)
		if err != nil {
			return uuid.Nil, perr.IO(err, "stat input file")
		}
		if !fi.Mode().IsRegular() {
			return uuid.Nil, perr.New(perr.KindIO, OpSubmit, fmt.Sprintf("%s is not a regular file", p))
		}
	}

	body, contentType, wait := c.streamSubmitForm(repositoryID, files, meta)
	resp, err := c.do(ctx, OpSubmit, http.MethodPost, c.endpoint(common.PathSubmit), body, contentType)
	// Closing the read side unblocks the writer if the request ended early.
	_ = body.Close()
	if writeErr := wait(); writeErr != nil && perr.IsKind(writeErr, perr.KindIO) {
		if resp != nil {
			closeBody(resp)
		}
		return uuid.Nil, writeErr
	}
	if err != nil {
		return uuid.Nil, err
	}
	defer closeBody(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return uuid.Nil, perr.Wrap(err, perr.KindTransport, OpSubmit, "read submit response")
	}
	id, err := parseJobID(raw)
	if err != nil {
		return uuid.Nil, perr.Wrap(err, perr.KindTransport, OpSubmit, "decode submit response")
	}
	return id, nil
}

// parseJobID accepts a JSON string or a bare UUID body.
func parseJobID(raw []byte) (JobID, error) {
	raw = bytes.TrimSpace(raw)
	s := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return uuid.Nil, err
		}
	}
	return uuid.Parse(s)
}

// GetStatus returns the current status of a job.
func (c *Client) GetStatus(ctx context.Context, jobID JobID) (*JobStatus, error) {
	resp, err := c.do(ctx, OpStatus, http.MethodGet, c.endpoint(common.PathStatus, jobID.String()), nil, "")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var st JobStatus
	if err := decodeJSON(resp, &st, OpStatus); err != nil {
		return nil, err
	}
	return &st, nil
}

// Download streams the job result into destDir and returns the written path.
func (c *Client) Download(ctx context.Context, jobID JobID, destDir string) (string, error) {
	resp, err := c.do(ctx, OpDownload, http.MethodGet, c.endpoint(common.PathDownload, jobID.String()), nil, "")
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	name := ResolveFilename(resp.Header.Get(common.HeaderContentDisp), jobID)
	if err := c.fs.MkdirAll(destDir, 0o755); err != nil {
		return "", perr.IO(err, "ensure download dir")
	}
	dst := filepath.Join(destDir, name)
	f, err := c.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", perr.IO(err, "create download file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = c.fs.Remove(dst)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", perr.Wrap(err, perr.KindTransport, OpDownload, "stream download")
	}
	if err := f.Close(); err != nil {
		return "", perr.IO(err, "close download file")
	}
	return dst, nil
}

// Release frees the server-side resources held by a job.
func (c *Client) Release(ctx context.Context, jobID JobID) error {
	resp, err := c.do(ctx, OpRelease, http.MethodPut, c.endpoint(common.PathRelease, jobID.String()), nil, "")
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}

func (c *Client) endpoint(elem ...string) string {
	// basePath is already validated; JoinPath only fails on an unparsable base.
	u, err := url.JoinPath(c.basePath, elem...)
	if err != nil {
		return c.basePath + strings.Join(elem, "/")
	}
	return u
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, perr.Wrap(err, perr.KindTransport, op, "new request")
	}
	req.Header.Set(c.apiKeyHeader, c.apiKey)
	if contentType != "" {
		req.Header.Set(common.HeaderContentType, contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, perr.Wrap(err, perr.KindTransport, op, op+" request")
	}
	if !IsSuccessStatus(resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, common.ErrorSnippetLimit+1))
		closeBody(resp)
		return nil, perr.Transport(op, resp.StatusCode,
			fmt.Sprintf("%s failed: HTTP error code: %d: %s", op, resp.StatusCode, truncate(string(snippet), common.ErrorSnippetLimit)))
	}
	return resp, nil
}

// IsSuccessStatus reports whether code is within the accepted 200-204 range.
func IsSuccessStatus(code int) bool {
	return code >= http.StatusOK && code <= http.StatusNoContent
}

func decodeJSON(resp *http.Response, v any, op string) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty response body")
		}
		return perr.Wrap(err, perr.KindTransport, op, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

// closeBody drains a bounded remainder so the connection can return to the pool.
func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
