package tags

import "strings"

// Decoder accumulates a streamed answer and exposes the decoded view after
// each chunk. Text belonging to a tag that has not closed yet is withheld
// from Visible until the tag completes.
type Decoder struct {
	buf strings.Builder
}

func (d *Decoder) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

func (d *Decoder) WriteString(s string) (int, error) {
	return d.buf.WriteString(s)
}

// Snapshot returns the current view without any trailing partial tag.
func (d *Decoder) Snapshot() Result {
	return parse(d.buf.String(), true)
}

// Final parses the whole buffer. An unterminated tag is left in Visible.
func (d *Decoder) Final() Result {
	return Parse(d.buf.String())
}

func (d *Decoder) Raw() string {
	return d.buf.String()
}
