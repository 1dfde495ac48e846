package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrides(t *testing.T) {
	env := map[string]string{
		"BUSSPASS_NAME":     "kolkata",
		"BUSSPASS_COUNT":    "5",
		"BUSSPASS_LAT":      "22.5726",
		"BUSSPASS_INTERVAL": "1500ms",
		"BUSSPASS_BAD":      "five",
	}

	name := "default"
	OverrideString(env, "BUSSPASS_NAME", &name)
	OverrideString(env, "BUSSPASS_MISSING", &name)
	assert.Equal(t, "kolkata", name)

	count := 1
	require.NoError(t, OverrideInt(env, "BUSSPASS_COUNT", &count))
	assert.Equal(t, 5, count)
	assert.Error(t, OverrideInt(env, "BUSSPASS_BAD", &count))
	assert.Equal(t, 5, count)

	lat := 0.0
	require.NoError(t, OverrideFloat(env, "BUSSPASS_LAT", &lat))
	assert.Equal(t, 22.5726, lat)

	interval := time.Second
	require.NoError(t, OverrideDuration(env, "BUSSPASS_INTERVAL", &interval))
	assert.Equal(t, 1500*time.Millisecond, interval)
}

func TestRemoveDuplicateStrings(t *testing.T) {
	assert.Equal(t, []string{"Esplanade", "Howrah"}, RemoveDuplicateStrings([]string{"Esplanade", "", "Howrah", "Esplanade", "Depot"}, []string{"Depot"}))
}

func TestInPlaceFilter(t *testing.T) {
	numbers := []int{1, 2, 3, 4}
	InPlaceFilter(&numbers, func(n int) bool { return n%2 == 0 })

	assert.Equal(t, []int{2, 4}, numbers)
}

func TestTrimString(t *testing.T) {
	assert.Equal(t, "Bre", TrimString("Breakdown", 3))
	assert.Equal(t, "ok", TrimString("ok", 10))
}
