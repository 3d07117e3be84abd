package backend_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/model"
)

func TestCompare(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.MustParse("441ff79f-4948-480e-9646-55a1462a5a70")

	cases := []struct {
		name   string
		op     backend.Operator
		data   any
		target any
		want   bool
	}{
		{"eq string", backend.OpEq, "VAC:BSY", "VAC:BSY", true},
		{"eq int vs float", backend.OpEq, int64(2), 2.0, true},
		{"eq kind vs string", backend.OpEq, model.KindSetpoint, "Setpoint", true},
		{"eq uuid vs string", backend.OpEq, id, id.String(), true},
		{"eq time", backend.OpEq, now, now.In(time.FixedZone("x", 3600)), true},
		{"eq mismatch", backend.OpEq, "a", 1, false},
		{"lt inclusive", backend.OpLt, 3, 3, true},
		{"lt", backend.OpLt, 4, 3, false},
		{"gt inclusive", backend.OpGt, 3.0, 3, true},
		{"gt string", backend.OpGt, "b", "a", true},
		{"gt time", backend.OpGt, now, now.Add(-time.Second), true},
		{"lt incomparable", backend.OpLt, "a", 1, false},
		{"in", backend.OpIn, "b", []string{"a", "b"}, true},
		{"in numbers", backend.OpIn, int64(3), []any{1, 2, 3}, true},
		{"in miss", backend.OpIn, "c", []string{"a", "b"}, false},
		{"like", backend.OpLike, "MY:MOTOR:mtr1.ACCL", `mtr\d\.A`, true},
		{"like uuid", backend.OpLike, id, "^441f", true},
		{"like non-string", backend.OpLike, 5, "5", false},
		{"tags label", backend.OpEq, model.Tags{"area": {"LI21", "BSY"}}, "BSY", true},
		{"tags miss", backend.OpEq, model.Tags{"area": {"LI21"}}, "BSY", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := backend.Compare(tc.op, tc.data, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileRejects(t *testing.T) {
	cases := map[string]backend.SearchTerm{
		"unknown operator": backend.Term(model.AttrTitle, "ne", "x"),
		"in non-slice":     backend.Term(model.AttrTitle, backend.OpIn, "x"),
		"like non-string":  backend.Term(model.AttrTitle, backend.OpLike, 3),
		"like bad regex":   backend.Term(model.AttrTitle, backend.OpLike, "(unclosed"),
	}
	for name, term := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := backend.Compile(term)
			require.ErrorIs(t, err, backend.ErrConfiguration)
		})
	}
}

func TestFilterMatch(t *testing.T) {
	p := model.NewParameter("VAC:LI21:TEST0", "vacuum")
	p.ReadOnly = true
	sp := model.SetpointFromParameter(p, model.Float(1.5))

	f, err := backend.Compile(
		backend.Term(model.AttrEntryType, backend.OpEq, model.KindParameter),
		backend.Term(model.AttrReadOnly, backend.OpEq, true),
	)
	require.NoError(t, err)
	assert.True(t, f.Match(p))
	assert.False(t, f.Match(sp))

	// an attribute the entry lacks never matches
	f, err = backend.Compile(backend.Term(model.AttrData, backend.OpGt, 1))
	require.NoError(t, err)
	assert.False(t, f.Match(p))
	assert.True(t, f.Match(sp))

	// no terms matches everything
	f, err = backend.Compile()
	require.NoError(t, err)
	assert.True(t, f.Match(p))
}
