package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EventID = "<tx_hash>:<log_index>"
func MakeEventID(txHash string, logIndex uint32) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(txHash), logIndex)
}

type ParsedEventID struct {
	TxHash   string
	LogIndex uint32
}

func ParseEventID(id string) (ParsedEventID, error) {
	var out ParsedEventID
	parts := strings.Split(id, ":")
	if len(parts) != 2 {
		return out, fmt.Errorf("invalid event_id format: %s", id)
	}

	logIdx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return out, fmt.Errorf("invalid log_index, err=%v", err)
	}

	out.TxHash = strings.ToLower(parts[0])
	out.LogIndex = uint32(logIdx)

	return out, nil
}
