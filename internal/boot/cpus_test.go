package boot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParkCPUsSkipsBootProcessorAndParksRest(t *testing.T) {
	m := &MADT{CPUs: []CPU{
		{ApicID: 0, Enabled: true},
		{ApicID: 1, Enabled: true},
		{ApicID: 2, Enabled: false},
		{ApicID: 3, Enabled: true},
	}}

	stacks := map[uint8]uintptr{1: 0x1000, 3: 0x2000}
	parked := ParkCPUs(m, ParseCmdLine(""), func(apicID uint8) uintptr { return stacks[apicID] })

	require.Len(t, parked, 2)
	require.EqualValues(t, 1, parked[0].ApicID)
	require.EqualValues(t, 1, parked[0].PerCPU.ID)
	require.EqualValues(t, 3, parked[1].ApicID)
}

func TestParkCPUsHonorsAPLimitCmdline(t *testing.T) {
	m := &MADT{CPUs: []CPU{
		{ApicID: 0, Enabled: true},
		{ApicID: 1, Enabled: true},
		{ApicID: 2, Enabled: true},
	}}

	parked := ParkCPUs(m, ParseCmdLine("aplim=2"), func(apicID uint8) uintptr { return 0x1000 })
	require.Len(t, parked, 1)
	require.EqualValues(t, 1, parked[0].ApicID)
}

func TestParkCPUsWithNoAPsReturnsEmpty(t *testing.T) {
	m := &MADT{CPUs: []CPU{{ApicID: 0, Enabled: true}}}
	parked := ParkCPUs(m, ParseCmdLine(""), func(apicID uint8) uintptr { return 0x1000 })
	require.Empty(t, parked)
}
