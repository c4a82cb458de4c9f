package types

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is either text or an inline binary blob such as a WAV slice.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func TextPart(s string) Part { return Part{Text: s} }

func AudioPart(wav []byte) Part { return Part{Data: wav, MIMEType: "audio/wav"} }

type Message struct {
	Role  Role
	Parts []Part
}

// SchemaKind selects the response schema the model is constrained to.
type SchemaKind string

const (
	SchemaNone        SchemaKind = ""
	SchemaSegments    SchemaKind = "segments"
	SchemaTranslation SchemaKind = "translation"
	SchemaItems       SchemaKind = "items"
)

// GenerateRequest is one model call. History holds the whole conversation, ending with a user turn.
type GenerateRequest struct {
	Model   string
	System  string
	History []Message
	Schema  SchemaKind
}

// WithTurns returns a copy of r with msgs appended to its history.
func (r GenerateRequest) WithTurns(msgs ...Message) GenerateRequest {
	h := make([]Message, 0, len(r.History)+len(msgs))
	h = append(h, r.History...)
	r.History = append(h, msgs...)
	return r
}
