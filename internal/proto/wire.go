package proto

import "encoding/json"

// WireMessage decodes one stored message as the backend serves it. Backend
// drafts disagree on field names (nick vs nickname vs sender, text vs
// message), so decoding tolerates every variant and the rest of the client
// only ever sees the canonical shape.
type WireMessage struct {
	Sender    string
	Text      string
	Timestamp int64
}

type wireMessageJSON struct {
	Sender    string `json:"sender"`
	Nick      string `json:"nick"`
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	TS        int64  `json:"ts"`
}

func (m *WireMessage) UnmarshalJSON(data []byte) error {
	var raw wireMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Sender = firstNonEmpty(raw.Sender, raw.Nick, raw.Nickname)
	m.Text = firstNonEmpty(raw.Text, raw.Message)
	m.Timestamp = raw.Timestamp
	if m.Timestamp == 0 {
		m.Timestamp = raw.TS
	}
	return nil
}

func (m WireMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessageJSON{
		Sender:    m.Sender,
		Nick:      m.Sender,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
