package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultWorkerCount_WithinExpectedRange(t *testing.T) {
	t.Parallel()
	got := DefaultWorkerCount()
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, 4)
}
