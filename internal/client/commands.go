package client

import (
	"github.com/google/uuid"

	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/resp"
)

func parseUUID(s string) (notify.Token, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return notify.Token{}, qerr.ProtocolErr("invalid notification token: %v", err)
	}
	return notify.Token(id), nil
}

// Handshake performs the PEER_HANDSHAKE capability/version exchange:
// sends the client's protocol version and returns the server's.
func (c *Client) Handshake() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := resp.NewArray([]resp.Value{resp.NewBulkString(resp.OpPeerHandshake), resp.NewInteger(resp.ProtocolVersion)})
	if err := resp.WriteValue(c.conn, cmd); err != nil {
		return 0, qerr.InternalErr("write handshake: %v", err)
	}
	v, err := c.readResponseLocked()
	if err != nil {
		return 0, err
	}
	if v.Kind != resp.Integer {
		return 0, qerr.ProtocolErr("malformed handshake response")
	}
	return v.Int, nil
}

// TakeSnapshot requests a binary snapshot blob (spec.md §4.H),
// returned as opaque bytes for the caller to pass to snapshot.Decode.
func (c *Client) TakeSnapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := resp.NewArray([]resp.Value{resp.NewBulkString(resp.OpTakeSnapshot)})
	if err := resp.WriteValue(c.conn, cmd); err != nil {
		return nil, qerr.InternalErr("write snapshot request: %v", err)
	}
	v, err := c.readResponseLocked()
	if err != nil {
		return nil, err
	}
	if v.Kind != resp.BulkString || v.IsNull {
		return nil, qerr.ProtocolErr("malformed snapshot response")
	}
	return v.Bulk, nil
}

// RegisterByID and RegisterByType register a remote notification
// subscription and return its Token; delivered NOTIFY frames for it
// arrive via the handler passed to Dial.
func (c *Client) RegisterByID(entity intern.EntityId, field intern.FieldType, cfg notify.Config) (notify.Token, error) {
	return c.register(resp.NewArray([]resp.Value{
		resp.NewBulkString(resp.OpRegisterNotification),
		resp.NewInteger(1),
		resp.EncodeEntityID(entity),
		resp.NewInteger(int64(field)),
		encodeNotifyConfig(cfg),
	}))
}

func (c *Client) RegisterByType(etype intern.EntityType, field intern.FieldType, cfg notify.Config) (notify.Token, error) {
	return c.register(resp.NewArray([]resp.Value{
		resp.NewBulkString(resp.OpRegisterNotification),
		resp.NewInteger(0),
		resp.NewInteger(int64(etype)),
		resp.NewInteger(int64(field)),
		encodeNotifyConfig(cfg),
	}))
}

func (c *Client) register(cmd resp.Value) (notify.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := resp.WriteValue(c.conn, cmd); err != nil {
		return notify.Token{}, qerr.InternalErr("write register: %v", err)
	}
	v, err := c.readResponseLocked()
	if err != nil {
		return notify.Token{}, err
	}
	if v.Kind != resp.BulkString {
		return notify.Token{}, qerr.ProtocolErr("malformed register response")
	}
	id, err := parseUUID(string(v.Bulk))
	if err != nil {
		return notify.Token{}, err
	}
	return id, nil
}

// Unregister removes a previously registered subscription.
func (c *Client) Unregister(token notify.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := resp.NewArray([]resp.Value{resp.NewBulkString(resp.OpUnregisterNotify), resp.NewBulkString(token.String())})
	if err := resp.WriteValue(c.conn, cmd); err != nil {
		return qerr.InternalErr("write unregister: %v", err)
	}
	_, err := c.readResponseLocked()
	return err
}

func encodeNotifyConfig(cfg notify.Config) resp.Value {
	paths := make([]resp.Value, len(cfg.ContextFields))
	for i, p := range cfg.ContextFields {
		elems := make([]resp.Value, len(p))
		for j, f := range p {
			elems[j] = resp.NewInteger(int64(f))
		}
		paths[i] = resp.NewArray(elems)
	}
	return resp.NewArray([]resp.Value{resp.NewInteger(int64(cfg.Trigger)), resp.NewArray(paths)})
}
