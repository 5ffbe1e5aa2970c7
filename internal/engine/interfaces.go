package engine

type walWriter interface {
	Append(payload []byte) error
	Flush() error
	Close() error
}

type CmdCodec interface {
	Encode(dst []byte, seq uint64, cmd Command) ([]byte, error)
	Decode(payload []byte) (seq uint64, cmd Command, err error)
}

type EvCodec interface {
	Encode(dst []byte, ev Event) ([]byte, error)
	Decode(payload []byte) (Event, error)
}

// Outbox 事件落盘; CmdEnd 标记一个 seq 的事件已完整
type Outbox interface {
	Append(ev Event) error
	AppendCmdEnd(seq uint64) error
	Flush() error
	Close() error
}
