package console

import (
	"testing"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
)

func TestKeyboardIRQTranslatesScancode(t *testing.T) {
	c := New()
	require.False(t, c.Ready())
	c.KeyboardIRQ(0x10) // 'q' in the xv6-derived table
	require.True(t, c.Ready())

	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('q'), buf[0])
	require.False(t, c.Ready())
}

func TestKeyboardIRQIgnoresUnmappedScancode(t *testing.T) {
	c := New()
	c.KeyboardIRQ(0xff)
	require.False(t, c.Ready())
}

func TestSerialIRQTranslatesCRAndDEL(t *testing.T) {
	c := New()
	c.SerialIRQ('\r')
	c.SerialIRQ(127)
	c.SerialIRQ('x')

	buf := make([]byte, 3)
	n, err := c.Read(buf)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{'\n', '\b', 'x'}, buf)
}

func TestReadOnEmptyQueueReturnsChannelEmpty(t *testing.T) {
	c := New()
	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.Equal(t, defs.EChannelEmpty, err)
	require.Equal(t, 0, n)
}

func TestReadDrainsPartiallyWhenBufferSmallerThanQueue(t *testing.T) {
	c := New()
	for _, sc := range []int{0x10, 0x11, 0x12} { // q, w, e
		c.KeyboardIRQ(sc)
	}
	buf := make([]byte, 2)
	n, err := c.Read(buf)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{'q', 'w'}, buf)
	require.True(t, c.Ready())

	n, err = c.Read(buf)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('e'), buf[0])
	require.False(t, c.Ready())
}

func TestPushDropsBytesPastCapacity(t *testing.T) {
	c := New()
	for i := 0; i < bufCap+10; i++ {
		c.KeyboardIRQ(0x10) // 'q'
	}
	require.Equal(t, bufCap, c.size)
}

func TestCloseMakesReadReturnEOFStyleZero(t *testing.T) {
	c := New()
	require.Equal(t, defs.OK, c.Close())
	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 0, n)
}
