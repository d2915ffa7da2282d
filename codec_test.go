package docstore

import (
	"bytes"
	"errors"
	"testing"
)

func TestMsgPackCodec(t *testing.T) {
	c := MsgPack[Note]()
	n := Note{ID: "a", Title: "Hello", Stars: 4, Due: &due}
	raw := must(c.Encode(n))
	deepEqual(t, must(c.Decode(raw)), n)

	// deterministic output
	deepEqual(t, bytes.Equal(raw, must(c.Encode(n))), true)

	_, err := c.Decode([]byte{0xc1})
	var derr *DataError
	if !errors.As(err, &derr) {
		t.Fatalf("** got %T %v, wanted DataError", err, err)
	}
	deepEqual(t, derr.Data, []byte{0xc1})
}

func TestJSONCodec(t *testing.T) {
	c := JSON[Draft]()
	raw := must(c.Encode(Draft{ID: "x", Body: "y"}))
	deepEqual(t, string(raw), `{"ID":"x","Body":"y"}`)
	deepEqual(t, must(c.Decode(raw)), Draft{ID: "x", Body: "y"})

	_, err := c.Decode([]byte("{"))
	if err == nil {
		t.Fatal("** expected error")
	}
}
