package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		matches  []string
		rejects  []string
		wantType any
	}{
		{
			name:     "exact",
			pattern:  "TRA",
			matches:  []string{"TRA"},
			rejects:  []string{"TRANS", "tra", ""},
			wantType: Exact{},
		},
		{
			name:     "multi value",
			pattern:  "ELC,GAS",
			matches:  []string{"ELC", "GAS"},
			rejects:  []string{"COAL", "ELC,GAS"},
			wantType: Multi{},
		},
		{
			name:     "wildcard prefix",
			pattern:  "EXP*",
			matches:  []string{"EXPELDZ", "EXPELCZ", "EXP"},
			rejects:  []string{"IMPGAS", "XEXP"},
			wantType: Wildcard{},
		},
		{
			name:     "regex",
			pattern:  "^EXP.+DZ$",
			matches:  []string{"EXPELDZ"},
			rejects:  []string{"EXPELCZ", "EXPDZX"},
			wantType: Regex{},
		},
		{
			name:     "negation",
			pattern:  "!ELC",
			matches:  []string{"GAS", ""},
			rejects:  []string{"ELC"},
			wantType: Negated{},
		},
		{
			name:     "negated wildcard",
			pattern:  "!EXP*",
			matches:  []string{"IMPGAS"},
			rejects:  []string{"EXPELDZ"},
			wantType: Negated{},
		},
		{
			name:     "mixed list with wildcard",
			pattern:  "ELC,EXP*",
			matches:  []string{"ELC", "EXPELDZ"},
			rejects:  []string{"GAS"},
			wantType: AnyOf{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := ParsePattern(tt.pattern)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, pred)

			for _, v := range tt.matches {
				assert.True(t, pred.Match(v), "%q should match %q", tt.pattern, v)
			}
			for _, v := range tt.rejects {
				assert.False(t, pred.Match(v), "%q should not match %q", tt.pattern, v)
			}
		})
	}
}

func TestParsePattern_WildcardScenario(t *testing.T) {
	pred, err := ParsePattern("EXP*")
	require.NoError(t, err)

	var matched []string
	for _, v := range []string{"EXPELDZ", "EXPELCZ", "IMPGAS"} {
		if pred.Match(v) {
			matched = append(matched, v)
		}
	}
	assert.Equal(t, []string{"EXPELDZ", "EXPELCZ"}, matched)
}

func TestParsePattern_Errors(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{name: "empty", pattern: ""},
		{name: "whitespace", pattern: "  "},
		{name: "invalid regex", pattern: "^[unclosed"},
		{name: "bare negation", pattern: "!"},
		{name: "negated invalid regex", pattern: "!^[unclosed"},
		{name: "only commas", pattern: ",,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePattern(tt.pattern)
			assert.Error(t, err)
		})
	}
}

func TestPredicate_String(t *testing.T) {
	for _, pattern := range []string{"TRA", "ELC,GAS", "EXP*", "^EXP.+", "!ELC"} {
		pred, err := ParsePattern(pattern)
		require.NoError(t, err)
		assert.Equal(t, pattern, pred.String())
	}
}
