package pagekey

import (
	"errors"
	"strings"
	"time"
)

var ErrMalformedKey = errors.New("malformed page key")

const (
	separator  = "|"
	dateFormat = "2006-01-02"
)

// Key identifies one timetable page: one subject's schedule for one
// calendar window. It is the composition of the subject id and the window
// boundary dates, so equality and map hashing work on the string itself.
// Subject ids must not contain the separator character.
type Key string

// Make builds the key for the given subject and window.
// Only the calendar date of the window boundaries is significant.
func Make(subjectID string, windowStart, windowEnd time.Time) Key {
	return Key(subjectID +
		separator + windowStart.Format(dateFormat) +
		separator + windowEnd.Format(dateFormat))
}

// Parts decodes a key back into its subject and window.
func (k Key) Parts() (subjectID string, windowStart, windowEnd time.Time, err error) {
	fields := strings.Split(string(k), separator)
	if len(fields) != 3 || fields[0] == "" {
		err = ErrMalformedKey
		return
	}
	subjectID = fields[0]
	if windowStart, err = time.Parse(dateFormat, fields[1]); err != nil {
		err = ErrMalformedKey
		return
	}
	if windowEnd, err = time.Parse(dateFormat, fields[2]); err != nil {
		err = ErrMalformedKey
		return
	}
	return
}

// SubjectID returns the subject id encoded in the key,
// or the empty string if the key does not decode.
func (k Key) SubjectID() string {
	subjectID, _, _, err := k.Parts()
	if err != nil {
		return ""
	}
	return subjectID
}

// Neighbors returns the keys for the same subject's windows exactly seven
// days before and after k, in that order. A key that does not decode has no
// neighbors: the caller just loses prefetching for that page.
func (k Key) Neighbors() []Key {
	subjectID, start, end, err := k.Parts()
	if err != nil {
		return nil
	}
	return []Key{
		Make(subjectID, start.AddDate(0, 0, -7), end.AddDate(0, 0, -7)),
		Make(subjectID, start.AddDate(0, 0, 7), end.AddDate(0, 0, 7)),
	}
}
