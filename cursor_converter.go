package nakasess

import (
	"strconv"

	"github.com/arloliu/nakasess/types"
)

// DefaultCursorConverter parses a raw offset as a base-10 integer. This
// matches the common case where the event-storage backend's offsets are
// plain sequence numbers; backends with a richer offset encoding should
// supply their own types.CursorConverter via WithCursorConverter.
//
// The converter only fills in Offset: the partition half of the cursor's
// identity is set by the caller, which already knows the key the offset
// was read for. Convert only takes the event type, not the partition id.
type DefaultCursorConverter struct{}

var _ types.CursorConverter = DefaultCursorConverter{}

// Convert implements types.CursorConverter.
func (DefaultCursorConverter) Convert(_ string, rawOffset string) (types.NakadiCursor, error) {
	offset, err := strconv.ParseInt(rawOffset, 10, 64)
	if err != nil {
		return types.NakadiCursor{}, types.NewParseError(rawOffset, err)
	}

	return types.NakadiCursor{Offset: offset}, nil
}
