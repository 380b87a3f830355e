package console

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
)

func TestOutWritePassesThroughToSink(t *testing.T) {
	var buf bytes.Buffer
	o := NewOut(&buf)
	n, err := o.Write([]byte("hello"))
	require.Equal(t, defs.OK, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("sink gone") }

func TestOutWriteReportsSinkErrorAsInvalidArgument(t *testing.T) {
	o := NewOut(failingWriter{})
	_, err := o.Write([]byte("x"))
	require.Equal(t, defs.EInvalidArgument, err)
}

func TestOutCloseIsNoop(t *testing.T) {
	o := NewOut(&bytes.Buffer{})
	require.Equal(t, defs.OK, o.Close())
}
