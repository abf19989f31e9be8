package proto

import "testing"

func TestCreateReqRoundTrip(t *testing.T) {
	in := CreateReq{Name: "v", Size: 3, ReplyQueue: "/initvec1234-1"}
	buf, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != in.WireSize() {
		t.Fatalf("wire size mismatch: got %d want %d", len(buf), in.WireSize())
	}

	var out CreateReq
	if err := out.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestSetReqRoundTrip(t *testing.T) {
	in := SetReq{Name: "vec", Pos: 41, Value: -7, ReplyQueue: "/setval999-2"}
	buf, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var out SetReq
	if err := out.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestGetReplyRoundTrip(t *testing.T) {
	in := GetReply{Value: -42, Status: StatusGetOK}
	buf, _ := in.MarshalBinary()

	var out GetReply
	if err := out.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestMarshalRejectsOverlongName(t *testing.T) {
	in := CreateReq{Name: "this-name-is-definitely-longer-than-thirty-nine-characters", Size: 1}
	if _, err := in.MarshalBinary(); err == nil {
		t.Fatal("expected error for overlong name, got nil")
	}
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	var out DestroyReq
	if err := out.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short buffer, got nil")
	}
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"v", true},
		{"Vec123", true},
		{"", false},
		{"**bad**", false},
		{"has space", false},
		{"x123456789012345678901234567890123456789", false}, // 40 chars
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if c.ok && err != nil {
			t.Errorf("ValidateName(%q): unexpected error %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateName(%q): expected error, got nil", c.name)
		}
	}
}
