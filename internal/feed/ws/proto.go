package ws

// ClientMsg: {"type":"sub","markets":["0x..."]}
type ClientMsg struct {
	Type    string   `json:"type"` // "sub" | "unsub"
	Markets []string `json:"markets"`
}

// ServerMsg 只用于控制消息; 事件直接发 feed.EventMessage 原文
type ServerMsg struct {
	Type    string   `json:"type"` // "subscribed" | "unsubscribed" | "error"
	Markets []string `json:"markets,omitempty"`
	Message string   `json:"message,omitempty"`
}
