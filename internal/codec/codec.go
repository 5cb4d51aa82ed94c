// Package codec frames records on a pipe channel and decodes the messages
// they carry.
//
// A record is the text between two newline terminators. A record holding a
// JSON object is a command; anything else is a signal word.
package codec

import "strings"

// MaxSplits bounds the records extracted by a single Decode call. Input
// beyond the bound stays in the fragment for the next call.
const MaxSplits = 1000

const terminator = "\n"

// Decode splits fragment+data into complete records and the trailing
// incomplete fragment.
func Decode(fragment, data string) (records []string, rest string) {
	buf := fragment + data
	for i := 0; i < MaxSplits; i++ {
		idx := strings.Index(buf, terminator)
		if idx < 0 {
			break
		}
		records = append(records, buf[:idx])
		buf = buf[idx+len(terminator):]
	}
	return records, buf
}

// Decoder keeps the fragment of a channel between reads.
type Decoder struct {
	fragment string
}

// Feed decodes newly read bytes and returns the complete records.
func (d *Decoder) Feed(data []byte) []string {
	if len(data) == 0 && d.fragment == "" {
		return nil
	}
	records, rest := Decode(d.fragment, string(data))
	d.fragment = rest
	return records
}

// Pending returns the bytes still waiting for a terminator.
func (d *Decoder) Pending() string {
	return d.fragment
}
