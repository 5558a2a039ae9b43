package fibre

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// TestFrameOffsets pins the first two byte offsets frame_amd64.s /
// frame_arm64.s hard code: Args at 0 and the first register after Args. If
// this fails after editing Frame, the matching .s file is out of sync and
// restoreFrame will load garbage into the wrong registers.
func TestFrameOffsets(t *testing.T) {
	var f Frame
	assert.Zero(t, unsafe.Offsetof(f.Args))
	assert.EqualValues(t, maxArgs*8, offsetOfTail(&f))
}

func TestFrameSizeIsRegisterAligned(t *testing.T) {
	var f Frame
	assert.Zero(t, unsafe.Sizeof(f)%8, "frame size must be a whole number of machine words")
}
