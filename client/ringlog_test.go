package client

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRingLog_EvictsOldest(t *testing.T) {
	r := NewRingLog(3)
	for i := 1; i <= 5; i++ {
		r.Add(fmt.Sprintf("line %d", i))
	}
	require.Equal(t, []string{"line 3", "line 4", "line 5"}, r.Lines())
}

func TestRingLog_DefaultCapacity(t *testing.T) {
	r := NewRingLog(0)
	for i := 0; i < 25; i++ {
		r.Add("x")
	}
	require.Len(t, r.Lines(), DefaultLogCapacity)
}

func TestRingLog_WriteSplitsLines(t *testing.T) {
	r := NewRingLog(10)
	n, err := r.Write([]byte("first\r\n\nsecond\n"))
	require.NoError(t, err)
	require.Equal(t, len("first\r\n\nsecond\n"), n)
	require.Equal(t, []string{"first", "second"}, r.Lines())
}

func TestRingLog_BehindZerolog(t *testing.T) {
	r := NewRingLog(2)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: r, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}})

	logger.Info().Msg("one")
	logger.Info().Msg("two")
	logger.Error().Msg("three")

	lines := r.Lines()
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "two")
	require.Contains(t, lines[1], "three")
}
