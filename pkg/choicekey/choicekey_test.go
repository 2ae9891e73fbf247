package choicekey

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type vector struct {
	Input string `yaml:"input"`
	Key   string `yaml:"key"`
}

func loadVectors(t *testing.T) []vector {
	t.Helper()

	raw, err := os.ReadFile("testdata/vectors.yaml")
	require.NoError(t, err)

	var vectors []vector
	require.NoError(t, yaml.Unmarshal(raw, &vectors))
	require.NotEmpty(t, vectors)
	return vectors
}

func TestNormalize_GoldenVectors(t *testing.T) {
	for _, v := range loadVectors(t) {
		t.Run(v.Input, func(t *testing.T) {
			assert.Equal(t, Key(v.Key), Normalize(v.Input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, v := range loadVectors(t) {
		once := Normalize(v.Input)
		assert.Equal(t, once, Normalize(string(once)), "input %q", v.Input)
	}
}

func TestNormalize_DiacriticInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("Hôm qua"), Normalize("hom qua"))
	assert.Equal(t, Key("hom_qua"), Normalize("HÔM   QUA"))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"18-25", "26-35", "36+"}, Split("18-25, 26-35 ,36+"))
	assert.Equal(t, []string{"a", "b"}, Split("a,,b, "))
	assert.Nil(t, Split("   "))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []Key{"hom_qua", "ngay_mai"}, Keys([]string{"Hôm qua", "Ngày mai"}))
}
