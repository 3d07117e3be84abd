package model_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/model/modeltest"
)

func TestMarshalRoundTrip(t *testing.T) {
	coll, snap := modeltest.Linac()
	root := modeltest.SampleDatabase()
	pwr := modeltest.ParameterWithReadback()
	pwr.Tags = model.Tags{"area": {"GUNB"}, "subsystem": {"VAC", "MGNT"}}
	pwr.AbsTolerance = 0.5

	for _, e := range []model.Entry{coll, snap, root, pwr} {
		data, err := model.MarshalEntry(e)
		require.NoError(t, err)

		back, err := model.UnmarshalEntry(data)
		require.NoError(t, err)
		assert.True(t, model.Equal(e, back), "round trip changed %s %s", e.Kind(), e.EntryID())
	}
}

func TestValueJSON(t *testing.T) {
	values := []model.Value{
		model.Null(),
		model.Bool(true),
		model.Int(-10),
		model.Float(645.26),
		model.String("Ion Pump"),
		model.Ints([]int64{1, 2, 3}),
		model.Floats([]float64{0.25}),
		model.Strings([]string{"a", "b"}),
		model.Bools([]bool{true, false}),
	}
	for _, v := range values {
		sp := &model.Setpoint{Meta: model.NewMeta(""), Address: "X", Data: v}
		data, err := model.MarshalEntry(sp)
		require.NoError(t, err)
		back, err := model.UnmarshalEntry(data)
		require.NoError(t, err)
		assert.True(t, v.Equal(back.(*model.Setpoint).Data), "value %s (%s)", v, v.Type)
	}
}

func TestNonFiniteFloats(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	assert.True(t, model.Float(nan).Equal(model.Float(nan)))
	assert.True(t, model.Floats([]float64{1, nan, -inf}).Equal(model.Floats([]float64{1, nan, -inf})))
	assert.False(t, model.Float(nan).Equal(model.Float(inf)))

	for _, v := range []model.Value{
		model.Float(nan),
		model.Float(inf),
		model.Float(-inf),
		model.Floats([]float64{0.5, nan, inf, -inf}),
	} {
		sp := &model.Setpoint{Meta: model.NewMeta(""), Address: "X", Data: v}
		data, err := model.MarshalEntry(sp)
		require.NoError(t, err, "value %s", v)
		back, err := model.UnmarshalEntry(data)
		require.NoError(t, err)
		assert.True(t, model.Equal(sp, back), "value %s changed", v)
	}

	sp := &model.Setpoint{Meta: model.NewMeta(""), Address: "X", Data: model.Float(nan)}
	data, err := model.MarshalEntry(sp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"NaN"`)

	rb := &model.Readback{Meta: model.NewMeta(""), Address: "X", Data: model.Float(inf)}
	assert.True(t, rb.WithinTolerance(model.Float(inf)))
	assert.False(t, rb.WithinTolerance(model.Float(-inf)))
}

func TestIntAndFloatAreDistinct(t *testing.T) {
	assert.False(t, model.Int(2).Equal(model.Float(2)))
	f, ok := model.Int(2).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, model.TypeBool, model.ParseValue("true").Type)
	assert.Equal(t, model.TypeInt, model.ParseValue("-3").Type)
	assert.Equal(t, model.TypeFloat, model.ParseValue("0.25").Type)
	assert.Equal(t, model.TypeString, model.ParseValue("Off").Type)
	assert.Equal(t, model.TypeInt, model.ParseValue("1").Type)
}

func TestValidate(t *testing.T) {
	coll, snap := modeltest.Linac()
	require.NoError(t, model.Validate(coll))
	require.NoError(t, model.Validate(snap))

	bad := model.NewCollection("bad", "")
	bad.Children = append(bad.Children, model.SetpointFromParameter(model.NewParameter("A", ""), model.Int(1)))
	require.ErrorIs(t, model.Validate(bad), model.ErrInvalidChild)

	loop := model.NewCollection("loop", "")
	inner := model.NewCollection("inner", "", loop)
	loop.Children = append(loop.Children, inner)
	require.ErrorIs(t, model.Validate(loop), model.ErrCycle)
}

func TestWalkVisitsReadbacks(t *testing.T) {
	p := modeltest.ParameterWithReadback()
	coll := model.NewCollection("c", "", p)

	var addrs []string
	model.Walk(coll, func(e model.Entry) bool {
		if p, ok := e.(*model.Parameter); ok {
			addrs = append(addrs, p.Address)
		}
		return true
	})
	assert.Equal(t, []string{"SET", "RBV"}, addrs)
	assert.Same(t, p.Readback, model.Find(coll, p.Readback.ID))
}

func TestCloneIsDeep(t *testing.T) {
	coll, _ := modeltest.Linac()
	c := model.Clone(coll).(*model.Collection)
	require.True(t, model.Equal(coll, c))

	c.Children[0].(*model.Collection).Title = "changed"
	assert.False(t, model.Equal(coll, c))
	assert.Equal(t, "LCLS-NC", coll.Children[0].(*model.Collection).Title)
}

func TestWithinTolerance(t *testing.T) {
	rb := &model.Readback{Data: model.Float(5.05), AbsTolerance: 0.1}
	assert.True(t, rb.WithinTolerance(model.Float(5.0)))
	assert.True(t, rb.WithinTolerance(model.Int(5)))

	rb.AbsTolerance = 0
	assert.False(t, rb.WithinTolerance(model.Float(5.0)))
	rb.RelTolerance = 0.02
	assert.True(t, rb.WithinTolerance(model.Float(5.0)))

	str := &model.Readback{Data: model.String("On")}
	assert.True(t, str.WithinTolerance(model.String("On")))
	assert.False(t, (&model.Readback{}).WithinTolerance(model.Int(0)))
}

func TestAttr(t *testing.T) {
	p := modeltest.ParameterWithReadback()
	v, ok := model.Attr(p, model.AttrAddress)
	require.True(t, ok)
	assert.Equal(t, "SET", v)

	_, ok = model.Attr(p, model.AttrTitle)
	assert.False(t, ok)

	v, ok = model.Attr(p, model.AttrEntryType)
	require.True(t, ok)
	assert.Equal(t, model.KindParameter, v)
}
