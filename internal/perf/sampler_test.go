package perf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotProducesValidProfile(t *testing.T) {
	p := Snapshot([]Sample{
		{Event: EventInstrRetired, Value: 42},
		{Event: EventLLCMisses, Value: 7},
	})
	require.NoError(t, p.CheckValid())
	require.Len(t, p.Sample, 2)
	require.Len(t, p.Function, 2)
	require.Len(t, p.Location, 2)

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	require.NotEmpty(t, buf.Bytes())
}

func TestSnapshotEmptyIsStillValid(t *testing.T) {
	p := Snapshot(nil)
	require.NoError(t, p.CheckValid())
}
