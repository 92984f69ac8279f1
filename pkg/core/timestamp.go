package core

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// timestampLayout is the second-precision prefix of a memory timestamp.
// The fractional part is filled from the snowflake ID so that two turns
// saved within the same millisecond still get distinct, ordered keys.
const timestampLayout = "2006-01-02 15:04:05"

// generateTimestamp returns a new globally unique, monotonic, sortable
// timestamp string of the form "2006-01-02 15:04:05.mmmssss", where mmm is
// the millisecond and ssss the snowflake sequence within that millisecond.
func generateTimestamp(node *snowflake.Node) string {
	id := node.Generate()
	t := time.UnixMilli(id.Time()).UTC()
	return fmt.Sprintf("%s.%03d%04d", t.Format(timestampLayout), t.Nanosecond()/1e6, id.Step())
}
