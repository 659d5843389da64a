package amber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsage(t *testing.T) {
	body := []byte(`[
		{"date":"2024-03-01","cost":250,"kwh":1.0,"channelType":"general","quality":"billable"},
		{"date":"2024-03-01","cost":-50,"energy":-0.5,"channel":"feedIn"},
		{"date":"2024-03-02"},
		{"cost":10,"kwh":1,"channelType":"general"},
		{"date":"not-a-date","cost":10},
		{"date":"2024-03-03","cost":"oops"},
		{"date":"2024-03-04","cost":null,"kwh":null}
	]`)

	records, dropped, err := parseUsage(body)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, 3, dropped)

	assert.Equal(t, "general", records[0].Channel)
	assert.Equal(t, 250.0, records[0].Cost)

	assert.Equal(t, "feedIn", records[1].Channel)
	assert.Equal(t, -0.5, records[1].KWh)
	assert.True(t, records[1].IsExport())

	// Missing numeric fields default to zero
	assert.Equal(t, "2024-03-02", records[2].Date.Format("2006-01-02"))
	assert.Zero(t, records[2].Cost)
	assert.Zero(t, records[2].KWh)
	assert.Empty(t, records[2].Channel)

	assert.Zero(t, records[3].Cost)
}

func TestParseUsage_NonArray(t *testing.T) {
	for _, body := range []string{`{"error":"x"}`, `null`, `"text"`, `42`} {
		records, dropped, err := parseUsage([]byte(body))
		require.NoError(t, err, body)
		assert.Empty(t, records, body)
		assert.Zero(t, dropped, body)
	}
}

func TestParseUsage_UndecodableBody(t *testing.T) {
	bodies := []string{
		`[{"date":`,
		`[{"date":"2024-03-01","cost":250}`,
		`garbage`,
		`<html>Bad Gateway</html>`,
		``,
	}
	for _, body := range bodies {
		records, dropped, err := parseUsage([]byte(body))
		assert.Error(t, err, body)
		assert.Nil(t, records, body)
		assert.Zero(t, dropped, body)
	}
}

func TestParseSites_InvalidJSON(t *testing.T) {
	_, err := parseSites([]byte(`<html>`))
	assert.Error(t, err)
}
