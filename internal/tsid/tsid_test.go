package tsid

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDsAreOrdered(t *testing.T) {
	var prev ID
	for i := 0; i < 100; i++ {
		id, err := New()
		require.NoError(t, err)
		if i > 0 {
			require.Equal(t, 1, Compare(id, prev), "id %s should sort after %s", id, prev)
		}
		prev = id
		time.Sleep(time.Millisecond)
	}
}

func TestParseRoundTrip(t *testing.T) {
	id, err := New()
	require.NoError(t, err)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	decoded, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, decoded)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-an-id")
	require.Error(t, err)

	_, err = FromBytes([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	a := ID(uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"))
	b := ID(uuid.MustParse("01890a5d-ac97-774b-bcce-b302099a8057"))

	require.Equal(t, -1, Compare(a, b))
	require.Equal(t, 1, Compare(b, a))
	require.Equal(t, 0, Compare(a, a))
}

func TestTimestampMatchesLeadingBits(t *testing.T) {
	// 0x017F22E279B0 ms == 2022-02-22T19:22:22.000Z (the RFC 9562 v7 example).
	id := ID(uuid.MustParse("017f22e2-79b0-7cc3-98c4-dc0c0c07398f"))
	want := time.Date(2022, 2, 22, 19, 22, 22, 0, time.UTC)
	require.Equal(t, want, id.Timestamp())
}

func TestTimestampOfFreshID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id, err := New()
	require.NoError(t, err)
	after := time.Now().Add(time.Second)

	ts := id.Timestamp()
	require.True(t, ts.After(before) && ts.Before(after), "timestamp %s outside [%s, %s]", ts, before, after)
}
