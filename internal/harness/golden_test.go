package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios_Golden runs every scenario in testdata/scenarios and
// compares its trace with testdata/golden/<name>.golden.
func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, s.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{
		Step:    1,
		Op:      OpMove,
		Session: "steve",
		Move:    &MoveTrace{Allowed: false, Pos: [3]float64{1.5, 2, 3}},
		Frozen:  []string{"steve"},
	})
	result.Links["steve"] = 0

	data, err := MarshalSnapshot("snap", result)
	require.NoError(t, err)

	want := `{
  "scenario_name": "snap",
  "trace": [
    {
      "step": 1,
      "op": "move",
      "session": "steve",
      "move": {
        "allowed": false,
        "pos": [
          1.5,
          2,
          3
        ]
      },
      "frozen": [
        "steve"
      ]
    }
  ],
  "links": {
    "steve": 0
  }
}
`
	assert.Equal(t, want, string(data))
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	result := NewResult()
	for _, alias := range []string{"zed", "alex", "steve", "bob"} {
		result.Links[alias] = 1
	}

	first, err := MarshalSnapshot("order", result)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalSnapshot("order", result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Less(t, strings.Index(string(first), `"alex"`), strings.Index(string(first), `"zed"`))
}
