package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.False(t, c.FolderUpload)
	assert.False(t, c.MaintenanceRoute)
	assert.Empty(t, c.EnabledFactors())
	assert.Len(t, c.Factors, len(KnownFactors))
}

func TestWithFactors(t *testing.T) {
	c := WithFactors([]string{"season", "weather", "bogus"})
	assert.Equal(t, []string{"weather", "season"}, c.EnabledFactors())
	assert.True(t, c.FactorEnabled("season"))
	assert.False(t, c.FactorEnabled("holidays"))
	assert.False(t, c.FactorEnabled("bogus"))
}
