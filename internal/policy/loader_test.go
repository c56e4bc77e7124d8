package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
features:
  - flag: image_generation
    enabled: true
    cost: 0.10
    required_plans: [pro, studio]
    overrides:
      3f2b8c1e-9a4d-4e7b-8c2a-1d5e6f7a8b9c: false
  - flag: video_generation
    enabled: true
    coming_soon: true
    cost: "2.50"
  - flag: upscale
    enabled: true
  - flag: captions
    enabled: false
    cost: cheap
  - flag: preview
    enabled: true
    cost: 0
`

func TestLoad(t *testing.T) {
	pols, err := Load(strings.NewReader(seed), nil)
	require.NoError(t, err)
	require.Len(t, pols, 5)

	img := pols[0]
	assert.Equal(t, "image_generation", img.FlagName)
	assert.True(t, img.IsEnabled)
	assert.True(t, img.Cost.Valid)
	assert.True(t, img.Cost.Decimal.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, []string{"pro", "studio"}, img.RequiredPlanKeys)
	allowed, ok := img.Override(uuid.MustParse("3f2b8c1e-9a4d-4e7b-8c2a-1d5e6f7a8b9c"))
	assert.True(t, ok)
	assert.False(t, allowed)

	video := pols[1]
	assert.True(t, video.IsComingSoon)
	assert.True(t, video.EffectiveCost().Equal(decimal.RequireFromString("2.5")))

	assert.False(t, pols[2].Cost.Valid, "missing cost stays unset")
	assert.True(t, pols[2].EffectiveCost().Equal(decimal.NewFromInt(1)))

	assert.False(t, pols[3].Cost.Valid, "non-numeric cost stays unset")
	assert.True(t, pols[3].EffectiveCost().Equal(decimal.NewFromInt(1)))

	assert.True(t, pols[4].Cost.Valid)
	assert.True(t, pols[4].EffectiveCost().IsZero(), "explicit zero is kept")
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"missing flag":  "features:\n  - enabled: true\n",
		"duplicate":     "features:\n  - flag: a\n  - flag: a\n",
		"bad override":  "features:\n  - flag: a\n    overrides:\n      not-a-uuid: true\n",
		"unknown field": "features:\n  - flag: a\n    price: 3\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	pols, err := Load(strings.NewReader(""), nil)
	require.NoError(t, err)
	assert.Empty(t, pols)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	pols, err := LoadFile(path, nil)
	require.NoError(t, err)
	assert.Len(t, pols, 5)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestParseCost(t *testing.T) {
	d, ok := ParseCost(" 0.05 ")
	assert.True(t, ok)
	assert.True(t, d.Decimal.Equal(decimal.RequireFromString("0.05")))

	_, ok = ParseCost(nil)
	assert.False(t, ok)
	_, ok = ParseCost(true)
	assert.False(t, ok)
}
