package htmltable

import (
	"reflect"
	"strings"
	"testing"
)

const doc = `<html><body>
<table>
  <tr><th>id</th><th>name</th></tr>
  <tr><td>1</td><td>alice</td></tr>
  <tr><td>2</td><td>bob</td></tr>
  <tr><td>3</td></tr>
</table>
</body></html>`

func TestRead(t *testing.T) {
	cols, rows, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(cols, []string{"id", "name"}) {
		t.Fatalf("cols = %v", cols)
	}
	want := [][]string{
		{"1", "alice"},
		{"2", "bob"},
		{"3", ""}, // short row padded to header width
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}

func TestRead_NoTable(t *testing.T) {
	if _, _, err := Read(strings.NewReader("<html><body><p>nope</p></body></html>")); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestPreview_FilterAndLimit(t *testing.T) {
	rows, err := Preview(strings.NewReader(doc), 2, []string{"name"})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], map[string]string{"name": "alice"}) {
		t.Fatalf("row = %#v", rows[0])
	}
}
