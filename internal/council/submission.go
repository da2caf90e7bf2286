package council

// Attachment is an optional supporting document sent with a decision.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission is a decision put to the council. An empty Mode means the
// caller's current mode applies.
type Submission struct {
	Text       string
	Attachment *Attachment
	Mode       Mode
}
