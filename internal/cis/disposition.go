package cis

import (
	"mime"
	"path"
	"strings"

	"github.com/jo-hoe/cisclient/internal/common"
)

// ResolveFilename picks the download file name from a Content-Disposition value,
// falling back to "<jobId>.unknown".
func ResolveFilename(contentDisposition string, jobID JobID) string {
	if name := filenameFromDisposition(contentDisposition); name != "" {
		return name
	}
	return jobID.String() + common.UnknownFileExt
}

func filenameFromDisposition(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(v); err == nil {
		if name := sanitizeFilename(params[common.ContentDispositionParam]); name != "" {
			return name
		}
	}

	// Servers do not always quote or escape correctly; scan for the raw parameter.
	key := common.ContentDispositionParam + "="
	idx := strings.Index(strings.ToLower(v), key)
	if idx < 0 {
		return ""
	}
	rest := v[idx+len(key):]
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		rest = rest[:semi]
	}
	return sanitizeFilename(strings.Trim(strings.TrimSpace(rest), `"'`))
}

// sanitizeFilename strips any directory components the server may send.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
