package pagekey

import (
	"testing"
	"time"
)

func date(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMakeAndParts(t *testing.T) {
	key := Make("u1", date("2024-01-01"), date("2024-01-07"))
	if key != "u1|2024-01-01|2024-01-07" {
		t.Fatalf("Key is %s", key)
	}
	subjectID, start, end, err := key.Parts()
	if err != nil {
		t.Fatal(err)
	}
	if subjectID != "u1" || !start.Equal(date("2024-01-01")) || !end.Equal(date("2024-01-07")) {
		t.Fatalf("Decoded %s %s %s", subjectID, start, end)
	}
}

func TestNeighbors(t *testing.T) {
	key := Make("u1", date("2024-01-01"), date("2024-01-07"))
	neighbors := key.Neighbors()
	if len(neighbors) != 2 {
		t.Fatalf("Got %d neighbors", len(neighbors))
	}
	if neighbors[0] != "u1|2023-12-25|2023-12-31" {
		t.Fatalf("Previous neighbor is %s", neighbors[0])
	}
	if neighbors[1] != "u1|2024-01-08|2024-01-14" {
		t.Fatalf("Next neighbor is %s", neighbors[1])
	}
}

func TestNeighborsOfMalformedKey(t *testing.T) {
	for _, key := range []Key{"", "u1", "u1|not-a-date|2024-01-07", "|2024-01-01|2024-01-07"} {
		if neighbors := key.Neighbors(); len(neighbors) != 0 {
			t.Fatalf("Key %q has neighbors %v", key, neighbors)
		}
	}
}

func TestSubjectID(t *testing.T) {
	key := Make("u1", date("2024-01-01"), date("2024-01-07"))
	if id := key.SubjectID(); id != "u1" {
		t.Fatalf("Subject id is %s", id)
	}
	if id := Key("garbage").SubjectID(); id != "" {
		t.Fatalf("Subject id of malformed key is %s", id)
	}
}
