package kernel

//go:generate easyjson -all packet.go

// Packet operations sent to the kernel process.
const (
	opEvaluate = "evaluate"
	opImage    = "image"
	opContexts = "contexts"
	opNames    = "names"
)

// Packet types received from the kernel process. Text and message packets may arrive at any time
// before the packet completing a request.
const (
	typeText    = "text"
	typeMessage = "message"
	typeReturn  = "return"
	typeImage   = "image"
	typeList    = "list"
	typeError   = "error"
)

//easyjson:json
type request struct {
	ID   uint64 `json:"id"`
	Op   string `json:"op"`
	Text string `json:"text,omitempty"`
	Expr *Expr  `json:"expr,omitempty"`
}

//easyjson:json
type response struct {
	ID    uint64   `json:"id"`
	Type  string   `json:"type"`
	Text  string   `json:"text,omitempty"`
	Expr  *Expr    `json:"expr,omitempty"`
	Data  []byte   `json:"data,omitempty"`
	Items []string `json:"items,omitempty"`
	Error string   `json:"error,omitempty"`
}

// async reports whether the packet is a message rather than the completion of a request.
func (r response) async() bool {
	return r.Type == typeText || r.Type == typeMessage
}

func (r response) message() Message {
	if r.Type == typeMessage {
		return Message{Kind: Warning, Text: r.Text}
	}
	return Message{Kind: Info, Text: r.Text}
}
