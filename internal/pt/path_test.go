package pt

import (
	"encoding/json"
	"testing"
)

func TestPathJSON(t *testing.T) {
	path := Path{Key("a"), ChildrenField, Key("a0"), TextField}
	data, err := json.Marshal(path)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `[{"_key":"a"},"children",{"_key":"a0"},"text"]` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var decoded Path
	if err := json.Unmarshal([]byte(`[{"_key":"a"},"children",2]`), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.Equal(Path{Key("a"), ChildrenField, Index(2)}) {
		t.Fatalf("unexpected decoded path %v", decoded)
	}
}

func TestPathRelations(t *testing.T) {
	block := BlockPath("a")
	child := ChildPath("a", "a0")
	other := ChildPath("b", "b0")

	if !child.HasPrefix(block) {
		t.Fatal("child path should have block prefix")
	}
	if block.HasPrefix(child) {
		t.Fatal("block path must not have child prefix")
	}
	if !block.Overlaps(child) || !child.Overlaps(block) {
		t.Fatal("block and child paths overlap")
	}
	if child.Overlaps(other) {
		t.Fatal("paths in different blocks do not overlap")
	}
	if key, ok := child.LastKey(); !ok || key != "a0" {
		t.Fatalf("LastKey() = %q, %v", key, ok)
	}
	if got := child.String(); got != `[_key=="a"].children[_key=="a0"]` {
		t.Fatalf("String() = %s", got)
	}
}
