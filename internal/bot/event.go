package bot

// File is an uploaded attachment as delivered by the messaging transport.
type File struct {
	Data []byte
	Name string
	MIME string
}

// Event is one inbound message, either text or a file.
type Event struct {
	UserID   int64
	Username string
	Text     string
	File     *File
}

// Reply is one outbound message. Document, when set, is sent as a file
// attachment alongside the text.
type Reply struct {
	Text         string
	Document     []byte
	DocumentName string
}

// TextLimit is the Telegram per-message character limit replies are split
// against.
const TextLimit = 4096

func textReplies(texts ...string) []Reply {
	out := make([]Reply, 0, len(texts))
	for _, t := range texts {
		for _, chunk := range SplitText(t, TextLimit) {
			out = append(out, Reply{Text: chunk})
		}
	}
	return out
}
