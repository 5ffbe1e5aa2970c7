package engine

import "github.com/segmentio/encoding/json"

// JSON 编码: 可读, 方便排查, 体积比二进制大

type cmdJSON struct {
	V   uint8   `json:"v"`
	Seq uint64  `json:"seq"`
	Cmd Command `json:"cmd"`
}

type JSONCmdCodec struct{ Version uint8 }

func (c JSONCmdCodec) Encode(dst []byte, seq uint64, cmd Command) ([]byte, error) {
	if !cmd.Type.valid() {
		return nil, ErrBadCmdType
	}
	b, err := json.Marshal(cmdJSON{V: c.Version, Seq: seq, Cmd: cmd})
	if err != nil {
		return nil, err
	}
	return append(dst[:0], b...), nil
}

func (c JSONCmdCodec) Decode(payload []byte) (uint64, Command, error) {
	var rec cmdJSON
	if err := json.Unmarshal(payload, &rec); err != nil {
		return 0, Command{}, err
	}
	if !rec.Cmd.Type.valid() {
		return 0, Command{}, ErrBadCmdType
	}
	return rec.Seq, rec.Cmd, nil
}

type evJSON struct {
	V  uint8 `json:"v"`
	Ev Event `json:"ev"`
}

type JSONEvCodec struct{ Version uint8 }

func (c JSONEvCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	b, err := json.Marshal(evJSON{V: c.Version, Ev: ev})
	if err != nil {
		return nil, err
	}
	return append(dst[:0], b...), nil
}

func (c JSONEvCodec) Decode(payload []byte) (Event, error) {
	var rec evJSON
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Event{}, err
	}
	return rec.Ev, nil
}
