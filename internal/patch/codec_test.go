package patch

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"ptedit/api/internal/pt"
)

func TestListJSON(t *testing.T) {
	input := `[
		{"type":"set","path":[{"_key":"a"},"children",{"_key":"a0"},"text"],"value":"hi"},
		{"type":"setIfMissing","path":[],"value":[]},
		{"type":"unset","path":[{"_key":"b"}]},
		{"type":"insert","path":[0],"position":"before","items":[{"_key":"c","_type":"block"}]},
		{"type":"diffMatchPatch","path":[{"_key":"a"},"children",{"_key":"a0"},"text"],"value":"@@ -1,2 +1,3 @@\n hi\n+!\n"}
	]`
	var list List
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("len = %d", len(list))
	}
	wantTypes := []Type{TypeSet, TypeSetIfMissing, TypeUnset, TypeInsert, TypeDiffMatchPatch}
	for i, p := range list {
		if p.Type() != wantTypes[i] {
			t.Errorf("patch %d type = %s, want %s", i, p.Type(), wantTypes[i])
		}
	}
	ins := list[3].(Insert)
	if !ins.Path.Equal(pt.Path{pt.Index(0)}) || ins.Position != Before || len(ins.Items) != 1 {
		t.Fatalf("insert = %#v", ins)
	}

	data, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var again List
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("Unmarshal again: %v", err)
	}
	if !reflect.DeepEqual(list, again) {
		t.Fatalf("round trip mismatch:\n%#v\n%#v", list, again)
	}
}

func TestUnmarshalRejectsBadShapes(t *testing.T) {
	for _, input := range []string{
		`{"type":"explode","path":[]}`,
		`{"type":"set","path":[]}`,
		`{"type":"insert","path":[{"_key":"a"}],"position":"inside","items":[]}`,
		`{"type":"insert","path":[],"position":"after","items":[]}`,
		`{"type":"diffMatchPatch","path":[],"value":3}`,
		`{"type":"unset","path":[{"key":"a"}]}`,
	} {
		if _, err := Unmarshal([]byte(input)); !errors.Is(err, ErrInvalidPatch) {
			t.Errorf("Unmarshal(%s) err = %v, want ErrInvalidPatch", input, err)
		}
	}
}
