package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulexconde/surveyflow/pkg/choicekey"
)

func TestTarget_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Target
	}{
		{`null`, EndSurvey()},
		{`0`, EndSurvey()},
		{`"0"`, EndSurvey()},
		{`""`, EndSurvey()},
		{`12`, GoTo(12)},
		{`"12"`, GoTo(12)},
		{`" 7 "`, GoTo(7)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Target
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTarget_UnmarshalJSONRejects(t *testing.T) {
	for _, in := range []string{`-3`, `"abc"`, `true`, `1.5`} {
		var got Target
		assert.Error(t, json.Unmarshal([]byte(in), &got), in)
	}
}

func TestBranchConfig_JSON(t *testing.T) {
	var cfg BranchConfig
	require.NoError(t, json.Unmarshal([]byte(`{"1825": 12, "36": null, "2635": "0"}`), &cfg))

	assert.Equal(t, BranchConfig{"1825": GoTo(12), "36": EndSurvey(), "2635": EndSurvey()}, cfg)

	out, err := json.Marshal(BranchConfig{"1825": GoTo(12), "36": EndSurvey()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"1825": 12, "36": null}`, string(out))
}

func TestBranchConfig_Lookup(t *testing.T) {
	cfg := BranchConfig{
		choicekey.Normalize("Có thể"): GoTo(3),
		"Legacy Raw":                  EndSurvey(),
	}

	got, ok := cfg.Lookup("  CO THE ")
	require.True(t, ok)
	assert.Equal(t, GoTo(3), got)

	got, ok = cfg.Lookup(" Legacy Raw ")
	require.True(t, ok)
	assert.True(t, got.IsEnd())

	_, ok = cfg.Lookup("something else")
	assert.False(t, ok)

	_, ok = BranchConfig(nil).Lookup("x")
	assert.False(t, ok)
}

func TestTarget_Accessors(t *testing.T) {
	sid, ok := GoTo(4).SectionID()
	assert.True(t, ok)
	assert.Equal(t, int64(4), sid)
	assert.Equal(t, "section:4", GoTo(4).String())

	_, ok = EndSurvey().SectionID()
	assert.False(t, ok)
	assert.Equal(t, "end", EndSurvey().String())

	r := BranchRule{NextSectionID: id(4)}
	assert.Equal(t, GoTo(4), r.Target())
	assert.True(t, (&BranchRule{}).Target().IsEnd())
}

func TestOperatorValid(t *testing.T) {
	for _, op := range []Operator{OpEquals, OpNotEquals, OpContains, OpIn, OpExpression} {
		assert.True(t, op.Valid(), op)
	}
	assert.False(t, Operator("gt").Valid())
}
