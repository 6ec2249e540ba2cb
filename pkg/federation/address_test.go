package federation

import (
	"reflect"
	"testing"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in       string
		id, host string
	}{
		{"alice@relay-b.example", "alice", "relay-b.example"},
		{"alice", "alice", ""},
		{"odd@name@relay-b.example", "odd@name", "relay-b.example"},
	}
	for _, tc := range cases {
		id, host := ParseAddress(tc.in)
		if id != tc.id || host != tc.host {
			t.Fatalf("ParseAddress(%q) = (%q, %q), want (%q, %q)", tc.in, id, host, tc.id, tc.host)
		}
	}
}

func TestPartitionSplitsByHost(t *testing.T) {
	p := Partition([]string{
		"alice",
		"bob@relay-a.example",
		"carol@relay-b.example",
		"dave@relay-b.example",
		"erin@relay-c.example",
		"  ",
	}, "relay-a.example")

	wantLocal := []string{"alice", "bob"}
	if !reflect.DeepEqual(p.Local, wantLocal) {
		t.Fatalf("Local = %v, want %v", p.Local, wantLocal)
	}
	wantRemote := map[string][]string{
		"relay-b.example": {"carol@relay-b.example", "dave@relay-b.example"},
		"relay-c.example": {"erin@relay-c.example"},
	}
	if !reflect.DeepEqual(p.Remote, wantRemote) {
		t.Fatalf("Remote = %v, want %v", p.Remote, wantRemote)
	}
}

func TestPartitionAllLocal(t *testing.T) {
	p := Partition([]string{"alice", "bob"}, "relay-a.example")
	if len(p.Remote) != 0 {
		t.Fatalf("Remote = %v, want empty", p.Remote)
	}
}
