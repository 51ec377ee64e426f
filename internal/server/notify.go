package server

import (
	"time"

	"github.com/google/uuid"

	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/resp"
)

// notifyPollInterval is how often a per-subscription goroutine checks
// its Queue for new records to forward as NOTIFY frames. The Queue
// itself is push-then-drain rather than a blocking channel (spec.md
// §4.E's bounded non-blocking delivery), so polling is the simplest
// way to turn it into a stream of frames without adding a second
// signaling path into notify.Hub.
const notifyPollInterval = 20 * time.Millisecond

func parseToken(s string) (notify.Token, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return notify.Token{}, qerr.ProtocolErr("invalid notification token: %v", err)
	}
	return notify.Token(id), nil
}

func decodeNotifyConfig(v resp.Value) (notify.Config, error) {
	if v.Kind != resp.Array || len(v.Array) != 2 {
		return notify.Config{}, qerr.ProtocolErr("malformed notification config")
	}
	cfg := notify.Config{Trigger: notify.Trigger(v.Array[0].Int)}
	for _, pv := range v.Array[1].Array {
		if pv.Kind != resp.Array {
			return notify.Config{}, qerr.ProtocolErr("malformed context field path")
		}
		path := make([]intern.FieldType, len(pv.Array))
		for i, e := range pv.Array {
			path[i] = intern.FieldType(e.Int)
		}
		cfg.ContextFields = append(cfg.ContextFields, path)
	}
	return cfg, nil
}
