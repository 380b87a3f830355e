package trap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildUserEntryFrameWritesRawFrameLayout(t *testing.T) {
	buf := make([]byte, UserEntryFrameSize)
	BuildUserEntryFrame(buf, 0xdead0000, 0x7fff0000, 0x23, 0x2b, 0x202)

	readSlot := func(slot int) uint64 {
		return binary.LittleEndian.Uint64(buf[slot*8 : slot*8+8])
	}

	for slot := 0; slot < 15; slot++ {
		require.Zerof(t, readSlot(slot), "GP register slot %d must start zeroed", slot)
	}
	require.EqualValues(t, 0, readSlot(15), "vector")
	require.EqualValues(t, 0, readSlot(16), "error code")
	require.EqualValues(t, 0xdead0000, readSlot(17), "RIP")
	require.EqualValues(t, 0x23, readSlot(18), "CS")
	require.EqualValues(t, 0x202, readSlot(19), "RFLAGS")
	require.EqualValues(t, 0x7fff0000, readSlot(20), "RSP")
	require.EqualValues(t, 0x2b, readSlot(21), "SS")
}

func TestBuildUserEntryFramePanicsOnUndersizedBuffer(t *testing.T) {
	require.Panics(t, func() {
		BuildUserEntryFrame(make([]byte, 4), 1, 2, 3, 4, 5)
	})
}
