package servicedef

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("http://127.0.0.1:9000", 9001, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", target.Host)
	assert.Equal(t, 9000, target.Port)
	assert.Equal(t, "127.0.0.1:9000", target.Address())
	assert.Equal(t, "http://127.0.0.1:9000", target.BaseURL())
	assert.Equal(t, "http://127.0.0.1:9000/a b", target.URL("/a b"))
	assert.Equal(t, 5*time.Second, target.Timeout)

	alt, ok := target.AltBaseURL()
	assert.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:9001", alt)
}

func TestParseTargetDefaults(t *testing.T) {
	target, err := ParseTarget("http://example", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "example:8080", target.Address())
	assert.Equal(t, DefaultTimeout, target.Timeout)
	_, ok := target.AltAddress()
	assert.False(t, ok)
}

func TestParseTargetRejectsBadInput(t *testing.T) {
	for _, u := range []string{"https://localhost:8443", "http://localhost:99999", "http://localhost:abc", "://"} {
		t.Run(u, func(t *testing.T) {
			_, err := ParseTarget(u, 0, 0)
			assert.Error(t, err)
		})
	}
}

func TestTargetInfoJSON(t *testing.T) {
	target, err := ParseTarget("http://localhost:8080", 0, 10*time.Second)
	require.NoError(t, err)
	data, err := json.Marshal(target.Info())
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"localhost","port":8080,"alt_port":null,"timeout":10}`, string(data))

	target, err = ParseTarget("http://localhost:8080", 8081, 10*time.Second)
	require.NoError(t, err)
	data, err = json.Marshal(target.Info())
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"localhost","port":8080,"alt_port":8081,"timeout":10}`, string(data))
}
