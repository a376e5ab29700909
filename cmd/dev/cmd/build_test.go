package cmd

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSpec(t *testing.T) {
	assert.True(t, buildSpec{os: runtime.GOOS, arch: runtime.GOARCH}.native())
	assert.False(t, buildSpec{os: "plan9", arch: runtime.GOARCH}.native())
	assert.Error(t, buildSpec{target: "sensors"}.goBuild())
	assert.Contains(t, buildTargets, "hpa")
}
