package boot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCmdLineSplitsKeyValueAndBareTokens(t *testing.T) {
	cl := ParseCmdLine("trace=1 aplim=2 quiet reserve=128")
	require.Equal(t, "1", cl["trace"])
	require.Equal(t, "2", cl["aplim"])
	require.Equal(t, "", cl["quiet"])
	require.Equal(t, "128", cl["reserve"])
}

func TestCmdLineTrace(t *testing.T) {
	require.True(t, ParseCmdLine("trace=1").Trace())
	require.False(t, ParseCmdLine("trace=0").Trace())
	require.False(t, ParseCmdLine("").Trace())
}

func TestCmdLineAPLimit(t *testing.T) {
	n, ok := ParseCmdLine("aplim=3").APLimit()
	require.True(t, ok)
	require.Equal(t, 3, n)

	_, ok = ParseCmdLine("").APLimit()
	require.False(t, ok)

	_, ok = ParseCmdLine("aplim=notanumber").APLimit()
	require.False(t, ok)
}

func TestCmdLineReserveOverride(t *testing.T) {
	n, ok := ParseCmdLine("reserve=256").ReserveOverride()
	require.True(t, ok)
	require.Equal(t, 256, n)

	_, ok = ParseCmdLine("").ReserveOverride()
	require.False(t, ok)
}
