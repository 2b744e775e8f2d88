package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/clipflow/ai"
)

func TestRegisterAll(t *testing.T) {
	reg := ai.NewRegistry()
	require.NoError(t, RegisterAll(reg, t.TempDir(), nil))

	for _, c := range ai.Capabilities() {
		assert.Equal(t, 1, reg.Len(c), "capability %s", c)
	}

	// 重复注册因重名失败
	assert.Error(t, RegisterAll(reg, t.TempDir(), nil))
}
