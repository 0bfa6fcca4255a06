package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_InSection(t *testing.T) {
	path := writeTestConfig(t, "[api]\nbase_ur = \"http://example.com\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "api.base_ur"`)
	assert.Contains(t, err.Error(), `did you mean "api.base_url"`)
}

func TestLoad_UnknownKey_Section(t *testing.T) {
	path := writeTestConfig(t, "[recrods]\ncache = false\nexport_workers = 2\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "recrods"`)
	assert.Contains(t, err.Error(), `did you mean "records"`)
	// One report per unknown section, not per key inside it.
	assert.Equal(t, 1, strings.Count(err.Error(), "recrods"))
}

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	path := writeTestConfig(t, `log_level = "debug"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "log_level"`)
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[upload]\ncompletely_unrelated_key = true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoad_UnknownKey_AllReported(t *testing.T) {
	path := writeTestConfig(t, "[api]\ntimout = \"5s\"\n[logging]\nlog_levl = \"info\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.timeout")
	assert.Contains(t, err.Error(), "logging.log_level")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"base_ur", "base_url", 1},
		{"recrods", "records", 2},
		{"completely_different", "xyz", 19},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch_Found(t *testing.T) {
	known := knownKeys["records"]
	assert.Equal(t, "cache", closestMatch("cach", known))
	assert.Equal(t, "export_workers", closestMatch("export_worker", known))
}

func TestClosestMatch_NotFound(t *testing.T) {
	assert.Equal(t, "", closestMatch("completely_unrelated", knownSections))
}
