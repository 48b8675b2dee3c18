package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TypicalOutput(t *testing.T) {
	raw := `traceroute to 8.8.8.8 (8.8.8.8), 20 hops max, 60 byte packets
 1  10.0.0.1  1.234 ms  1.100 ms  1.050 ms
 2  gateway (172.16.0.1)  2.500 ms  2.400 ms
 3  192.168.50.1 (192.168.50.1)  0.710 ms  0.683 ms
 4  * * *
 5  8.8.8.8  12.000 ms`

	hops := Parse(raw)
	require.Len(t, hops, 5)

	assert.Equal(t, 1, hops[0].Hop)
	assert.Equal(t, "10.0.0.1", hops[0].IP)
	assert.Empty(t, hops[0].RDNS)
	assert.Equal(t, []float64{1.234, 1.100, 1.050}, hops[0].Times)

	assert.Equal(t, 2, hops[1].Hop)
	assert.Equal(t, "172.16.0.1", hops[1].IP)
	assert.Equal(t, "gateway", hops[1].RDNS)
	assert.Equal(t, []float64{2.500, 2.400}, hops[1].Times)

	assert.Equal(t, 3, hops[2].Hop)
	assert.Equal(t, "192.168.50.1", hops[2].IP)
	assert.Equal(t, []float64{0.710, 0.683}, hops[2].Times)

	// No-response hop keeps its number but carries no address or times.
	assert.Equal(t, 4, hops[3].Hop)
	assert.Empty(t, hops[3].IP)
	assert.Empty(t, hops[3].Times)

	assert.Equal(t, 5, hops[4].Hop)
	assert.Equal(t, "8.8.8.8", hops[4].IP)
}

func TestParse_KeepsRawLine(t *testing.T) {
	hops := Parse("1  10.0.0.1  1.234 ms")
	require.Len(t, hops, 1)
	assert.Equal(t, "1  10.0.0.1  1.234 ms", hops[0].RawLine)
}

func TestParse_SkipsNonHopLines(t *testing.T) {
	raw := `traceroute to example.com (93.184.216.34), 30 hops max

some banner text
1  10.0.0.1  1.0 ms`

	hops := Parse(raw)
	require.Len(t, hops, 1)
	assert.Equal(t, 1, hops[0].Hop)
}

func TestParse_EmptyAndGarbageInput(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("no hops here\nnothing at all"))
}

func TestParse_HopNumbersKeptAsReported(t *testing.T) {
	raw := "3  10.0.0.3  1.0 ms\n7  10.0.0.7  2.0 ms"
	hops := Parse(raw)
	require.Len(t, hops, 2)
	assert.Equal(t, 3, hops[0].Hop)
	assert.Equal(t, 7, hops[1].Hop)
}
