package synth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignRoundsUpToBoundary(t *testing.T) {
	require.Equal(t, uint32(0), align(0, 16))
	require.Equal(t, uint32(16), align(1, 16))
	require.Equal(t, uint32(16), align(16, 16))
	require.Equal(t, uint32(32), align(17, 16))
}
