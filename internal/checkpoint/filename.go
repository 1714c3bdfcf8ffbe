package checkpoint

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Filename returns the default checkpoint path for a batch:
// <outputDir>/checkpoint.<batch>.ckpt, with the batch number zero-padded
// to the digit count of the total batch count so files sort in batch
// order.
func Filename(outputDir string, batch, nBatches int32) string {
	digits := len(strconv.Itoa(int(nBatches)))
	return filepath.Join(outputDir, fmt.Sprintf("checkpoint.%0*d.ckpt", digits, batch))
}
