package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func materials(ids ...string) []StudyMaterial {
	out := make([]StudyMaterial, len(ids))
	for i, id := range ids {
		out[i] = StudyMaterial{ID: id, Name: id + ".txt", Kind: MaterialText, Content: id}
	}
	return out
}

func ids(ms []StudyMaterial) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestRemoveMaterial_KeepsOrder(t *testing.T) {
	cfg := DefaultStudyConfig()
	cfg.Materials = materials("a", "b", "c", "d")

	assert.True(t, cfg.RemoveMaterial("b"))
	assert.Equal(t, []string{"a", "c", "d"}, ids(cfg.Materials))

	assert.False(t, cfg.RemoveMaterial("missing"))
	assert.Equal(t, []string{"a", "c", "d"}, ids(cfg.Materials))
}

func TestRemoveMaterial_DoesNotAliasClone(t *testing.T) {
	cfg := DefaultStudyConfig()
	cfg.Materials = materials("a", "b", "c")
	snapshot := cfg.Clone()

	cfg.RemoveMaterial("a")

	assert.Equal(t, []string{"a", "b", "c"}, ids(snapshot.Materials))
}

func TestAvatar_ImageAndVideoAreExclusive(t *testing.T) {
	cfg := DefaultStudyConfig()

	cfg.SetPartnerImage("data:image/png;base64,AAA")
	require.NotNil(t, cfg.PartnerImage)
	assert.Nil(t, cfg.PartnerVideo)

	cfg.SetPartnerVideo("data:video/mp4;base64,BBB")
	require.NotNil(t, cfg.PartnerVideo)
	assert.Nil(t, cfg.PartnerImage)

	cfg.SetPartnerImage("data:image/png;base64,CCC")
	assert.Equal(t, "data:image/png;base64,CCC", *cfg.PartnerImage)
	assert.Nil(t, cfg.PartnerVideo)

	cfg.ClearAvatar()
	assert.Nil(t, cfg.PartnerImage)
	assert.Nil(t, cfg.PartnerVideo)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StudyConfig)
		invalid []string
	}{
		{"defaults are valid", func(*StudyConfig) {}, nil},
		{"lower bound", func(c *StudyConfig) { c.Intelligence = 80 }, nil},
		{"upper bound", func(c *StudyConfig) { c.Intelligence = 180 }, nil},
		{"too low", func(c *StudyConfig) { c.Intelligence = 79 }, []string{"intelligence"}},
		{"too high", func(c *StudyConfig) { c.Intelligence = 181 }, []string{"intelligence"}},
		{"blank name", func(c *StudyConfig) { c.PartnerName = "  " }, []string{"partner_name"}},
		{"zero duration", func(c *StudyConfig) { c.DurationMinutes = 0 }, []string{"duration_minutes"}},
		{"one day", func(c *StudyConfig) { c.DurationMinutes = MaxDurationMinutes }, nil},
		{"too long", func(c *StudyConfig) { c.DurationMinutes = MaxDurationMinutes + 1 }, []string{"duration_minutes"}},
		{"overflowing duration", func(c *StudyConfig) { c.DurationMinutes = math.MaxInt/60 + 1 }, []string{"duration_minutes"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultStudyConfig()
			tc.mutate(&cfg)

			fields := cfg.Validate()
			if tc.invalid == nil {
				assert.Nil(t, fields)
				return
			}
			for _, f := range tc.invalid {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestView_HidesPayloads(t *testing.T) {
	cfg := DefaultStudyConfig()
	cfg.Materials = []StudyMaterial{{ID: "1-0", Name: "a.pdf", Kind: MaterialFile, MIMEType: "application/pdf", Content: "QUJD"}}

	view := cfg.View()

	require.Len(t, view.Materials, 1)
	assert.Equal(t, 4, view.Materials[0].Size)
	assert.Equal(t, "Alice", view.PartnerName)
}
