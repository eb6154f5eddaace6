package errors

import (
	stderrs "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:    "unknown",
		KindConfig:     "config",
		KindTransport:  "transport",
		KindJobFailure: "job",
		KindIO:         "io",
		Kind(99):       "unknown",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}

func TestWrap_NilPassThrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, KindIO, "op", "msg"))
	assert.NoError(t, IO(nil, "mkdir"))
}

func TestTransport_CarriesStatusThroughWrapping(t *testing.T) {
	base := Transport("status", 404, "unexpected status 404")
	wrapped := fmt.Errorf("poll job: %w", base)

	assert.True(t, IsKind(wrapped, KindTransport))
	assert.Equal(t, 404, StatusCode(wrapped))
	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "status", e.Op())
	assert.Equal(t, "unexpected status 404", e.Error())
}

func TestIO_UnwrapsToCause(t *testing.T) {
	err := IO(fs.ErrNotExist, "read input dir")
	assert.True(t, stderrs.Is(err, fs.ErrNotExist))
	assert.Equal(t, KindIO, KindOf(err))
	assert.Contains(t, err.Error(), "read input dir")
}

func TestKindOf_ForeignError(t *testing.T) {
	err := stderrs.New("plain")
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, 0, StatusCode(err))
	assert.Same(t, err, WithOp(err, "x"))
}

func TestWithOp_CopyOnWrite(t *testing.T) {
	orig := JobFailure("poll", "completed with failure")
	changed := WithOp(orig, "lifecycle")

	e, ok := As(changed)
	require.True(t, ok)
	assert.Equal(t, "lifecycle", e.Op())
	assert.Equal(t, "poll", orig.Op())
}

func TestConfig_Formats(t *testing.T) {
	err := Config("field %s is required", "apiKey")
	assert.Equal(t, "field apiKey is required", err.Error())
	assert.Equal(t, KindConfig, err.Kind())
}

func TestNilError_String(t *testing.T) {
	var e *Error
	assert.Equal(t, "<nil>", e.Error())
}
