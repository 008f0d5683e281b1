package harvest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTime_RoundTripPreservesOffset(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("", 3*60*60)
	original := NewTime(time.Date(2021, 5, 10, 14, 30, 0, 0, zone))

	data, err := json.Marshal(original)
	require.NoError(t, err)
	require.Equal(t, `"2021-05-10T14:30+0300"`, string(data))

	var decoded Time
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, decoded.Equal(original.Time))

	_, offset := decoded.Zone()
	require.Equal(t, 3*60*60, offset, "offset must round-trip, not normalize to UTC")
}

func TestTime_UnmarshalRejectsGarbage(t *testing.T) {
	t.Parallel()

	var decoded Time
	require.Error(t, json.Unmarshal([]byte(`"2021-05-10"`), &decoded))
}

func TestRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	published := NewTime(time.Date(2021, 5, 10, 14, 30, 0, 0, time.FixedZone("", 2*60*60)))
	modified := NewTime(time.Date(2021, 5, 11, 9, 0, 0, 0, time.FixedZone("", 2*60*60)))
	record := Record{
		Language:  LanguageEnglish,
		Title:     "A headline",
		Published: published,
		Modified:  &modified,
		Text:      "Body text.",
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, record.Language, decoded.Language)
	require.Equal(t, record.Title, decoded.Title)
	require.Equal(t, record.Text, decoded.Text)
	require.True(t, decoded.Published.Equal(published.Time))
	require.NotNil(t, decoded.Modified)
	require.True(t, decoded.Modified.Equal(modified.Time))
}

func TestRecord_ModifiedOmittedWhenAbsent(t *testing.T) {
	t.Parallel()

	record := Record{
		Language:  LanguageFrench,
		Title:     "Sans modification",
		Published: NewTime(time.Date(2021, 5, 10, 14, 30, 0, 0, time.UTC)),
		Text:      "Texte.",
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NotContains(t, string(data), "modified")
}
