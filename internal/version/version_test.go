package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()
	assert.True(t, strings.HasPrefix(info, "relmodel "+Short()+" "))
	assert.Contains(t, info, "commit: "+Commit)
	assert.True(t, strings.HasSuffix(info, runtime.Version()))
}
