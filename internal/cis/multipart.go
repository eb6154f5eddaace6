package cis

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
)

// streamSubmitForm writes the submit form into a pipe from a goroutine so files are
// streamed from disk rather than buffered. wait blocks until the writer has
// finished and every opened file is closed, and returns the writer's error.
func (c *Client) streamSubmitForm(repositoryID uuid.UUID, files []string, meta FileMetadata) (body io.ReadCloser, contentType string, wait func() error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan error, 1)
	go func() {
		err := c.writeSubmitForm(mw, repositoryID, files, meta)
		_ = pw.CloseWithError(err)
		done <- err
	}()
	return pr, mw.FormDataContentType(), func() error { return <-done }
}

// writeSubmitForm emits RepositoryId, then per file the binary part followed by its
// metadata name/value text parts.
func (c *Client) writeSubmitForm(mw *multipart.Writer, repositoryID uuid.UUID, files []string, meta FileMetadata) error {
	if err := mw.WriteField(common.FormRepositoryID, repositoryID.String()); err != nil {
		return err
	}
	for i, path := range files {
		if err := c.writeFilePart(mw, i, path); err != nil {
			return err
		}
		for j, m := range meta.For(path) {
			if err := mw.WriteField(fmt.Sprintf(common.FormMetadataName, i, j), m.Name); err != nil {
				return err
			}
			if err := mw.WriteField(fmt.Sprintf(common.FormMetadataValue, i, j), m.Value); err != nil {
				return err
			}
		}
	}
	return mw.Close()
}

// writeFilePart holds the input file open only while its part is written.
func (c *Client) writeFilePart(mw *multipart.Writer, index int, path string) error {
	f, err := c.fs.Open(path)
	if err != nil {
		return perr.IO(err, "open input file")
	}
	defer func() { _ = f.Close() }()

	h := make(textproto.MIMEHeader)
	h.Set(common.HeaderContentDisp, fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fmt.Sprintf(common.FormInputFile, index)), quoteEscaper.Replace(filepath.Base(path))))
	h.Set(common.HeaderContentType, PartContentType(path))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// PartContentType guesses a file part's media type from its extension. Unknown
// extensions are sent as application/octet-stream.
func PartContentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return common.ContentTypeOctetStream
}
