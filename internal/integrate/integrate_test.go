package integrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"datasync/internal/flatfile"
	"datasync/internal/schema"
	"datasync/internal/store"
)

// fakeStore records calls and plays back canned query results.
type fakeStore struct {
	queryCols []string
	queryRows [][]any
	queryErr  error

	insertErr error

	lastSQL      string
	ensuredTable string
	ensuredCols  []schema.Column
	insertCalls  int
	inserted     [][][]any
	insertCols   []string
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Tables(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) Close() {}

func (f *fakeStore) Describe(ctx context.Context, table string) ([]schema.Column, error) {
	return f.ensuredCols, nil
}

func (f *fakeStore) Query(ctx context.Context, sql string) ([]string, [][]any, error) {
	f.lastSQL = sql
	return f.queryCols, f.queryRows, f.queryErr
}

func (f *fakeStore) EnsureTable(ctx context.Context, table string, cols []schema.Column) error {
	f.ensuredTable = table
	f.ensuredCols = cols
	return nil
}

func (f *fakeStore) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.insertCalls++
	f.insertCols = cols
	batch := make([][]any, len(rows))
	copy(batch, rows)
	f.inserted = append(f.inserted, batch)
	return int64(len(rows)), nil
}

func tmpFile(t *testing.T, name string) *flatfile.Client {
	t.Helper()
	return flatfile.New(filepath.Join(t.TempDir(), name), ',')
}

func writeFile(t *testing.T, content string) *flatfile.Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return flatfile.New(path, ',')
}

func TestStoreToFile_WritesSelectedColumns(t *testing.T) {
	fs := &fakeStore{
		queryCols: []string{"name", "amount"},
		queryRows: [][]any{{"a", 1.5}, {"b", 2.0}},
	}
	file := tmpFile(t, "out.csv")

	g := &Integrator{}
	res := g.StoreToFile(context.Background(), fs, file, "db", "src", []string{"name", "amount"}, false, nil)

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Records != 2 {
		t.Fatalf("Records = %d, want 2", res.Records)
	}

	wantSQL := "SELECT name, amount FROM db.src LIMIT 10000"
	if fs.lastSQL != wantSQL {
		t.Fatalf("query = %q, want %q", fs.lastSQL, wantSQL)
	}

	raw, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	if string(raw) != "name,amount\na,1.5\nb,2\n" {
		t.Fatalf("file = %q", raw)
	}
}

func TestStoreToFile_WildcardTruncatesToSelectionWidth(t *testing.T) {
	fs := &fakeStore{
		queryCols: []string{"c1", "c2", "c3", "c4", "c5", "c6"},
		queryRows: [][]any{
			{"1", "2", "3", "4", "5", "6"},
			{"a", "b", "c", "d", "e", "f"},
		},
	}
	file := tmpFile(t, "out.csv")

	g := &Integrator{}
	res := g.StoreToFile(context.Background(), fs, file, "db", "t",
		[]string{"c1", "c2", "c3", "c4"}, true, nil)

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if !strings.HasPrefix(fs.lastSQL, "SELECT * FROM") {
		t.Fatalf("wildcard must query *: %q", fs.lastSQL)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected truncation warning, got %v", res.Warnings)
	}

	cols, rows, _, err := file.Read(nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(cols, []string{"c1", "c2", "c3", "c4"}) {
		t.Fatalf("header = %v", cols)
	}
	for _, r := range rows {
		if len(r) != 4 {
			t.Fatalf("row width = %d, want 4: %v", len(r), r)
		}
	}
}

func TestStoreToFile_ExplicitSelectionNeverTruncates(t *testing.T) {
	fs := &fakeStore{
		queryCols: []string{"a", "b", "c"},
		queryRows: [][]any{{"1", "2", "3"}},
	}
	file := tmpFile(t, "out.csv")

	g := &Integrator{}
	res := g.StoreToFile(context.Background(), fs, file, "db", "t", []string{"a", "b"}, false, nil)

	if !res.Success || len(res.Warnings) != 0 {
		t.Fatalf("result = %+v", res)
	}
	cols, _, _, err := file.Read(nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("explicit selection must keep returned columns, header = %v", cols)
	}
}

func TestStoreToFile_JoinWithMissingCondition(t *testing.T) {
	fs := &fakeStore{queryCols: []string{"a"}, queryRows: nil}
	file := tmpFile(t, "out.csv")

	g := &Integrator{}
	res := g.StoreToFile(context.Background(), fs, file, "db", "t", []string{"a"}, false, &store.JoinSpec{
		Tables:     []string{"x", "y"},
		Conditions: []string{"t.id = x.id"},
	})

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	want := "SELECT a FROM db.t JOIN db.x ON t.id = x.id JOIN db.y ON  LIMIT 10000"
	if fs.lastSQL != want {
		t.Fatalf("query = %q, want %q", fs.lastSQL, want)
	}
}

func TestStoreToFile_QueryErrorBecomesResult(t *testing.T) {
	fs := &fakeStore{queryErr: errors.New("connection reset")}
	file := tmpFile(t, "out.csv")

	g := &Integrator{}
	res := g.StoreToFile(context.Background(), fs, file, "db", "t", nil, false, nil)

	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Records != 0 {
		t.Fatalf("Records = %d, want 0", res.Records)
	}
	if !strings.Contains(res.Message, "connection reset") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestFileToStore_InfersSchemaAndInserts(t *testing.T) {
	file := writeFile(t, "id,amount,name\n1,1.5,a\n2,2.5,b\n")
	fs := &fakeStore{}

	g := &Integrator{}
	res := g.FileToStore(context.Background(), file, fs, "dest", nil)

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Records != 2 {
		t.Fatalf("Records = %d, want 2", res.Records)
	}
	if fs.ensuredTable != "dest" {
		t.Fatalf("ensured table = %q", fs.ensuredTable)
	}

	wantSchema := []schema.Column{
		{Name: "id", Type: schema.TypeInteger},
		{Name: "amount", Type: schema.TypeFloat},
		{Name: "name", Type: schema.TypeString},
	}
	if !reflect.DeepEqual(fs.ensuredCols, wantSchema) {
		t.Fatalf("schema = %+v, want %+v", fs.ensuredCols, wantSchema)
	}

	// Values arrive typed per the inferred schema.
	if fs.inserted[0][0][0] != int64(1) || fs.inserted[0][0][1] != 1.5 || fs.inserted[0][0][2] != "a" {
		t.Fatalf("typed row = %#v", fs.inserted[0][0])
	}
}

func TestFileToStore_ZeroRowsShortCircuits(t *testing.T) {
	file := writeFile(t, "a,b\n")
	fs := &fakeStore{}

	g := &Integrator{}
	res := g.FileToStore(context.Background(), file, fs, "dest", nil)

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Records != 0 {
		t.Fatalf("Records = %d, want 0", res.Records)
	}
	if res.Message != "No data to transfer" {
		t.Fatalf("message = %q", res.Message)
	}
	if fs.insertCalls != 0 {
		t.Fatalf("insert must not be called, got %d calls", fs.insertCalls)
	}
	if fs.ensuredTable != "" {
		t.Fatal("table must not be created for an empty file")
	}
}

func TestFileToStore_BatchBoundaries(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("1\n")
	}
	file := writeFile(t, sb.String())
	fs := &fakeStore{}

	g := &Integrator{BatchSize: 2}
	res := g.FileToStore(context.Background(), file, fs, "dest", nil)

	if !res.Success || res.Records != 5 {
		t.Fatalf("result = %+v", res)
	}
	if fs.insertCalls != 3 {
		t.Fatalf("insertCalls = %d, want 3 (2+2+1)", fs.insertCalls)
	}
	if len(fs.inserted[2]) != 1 {
		t.Fatalf("final short batch size = %d, want 1", len(fs.inserted[2]))
	}
}

func TestFileToStore_MissingColumnWarns(t *testing.T) {
	file := writeFile(t, "a,b\n1,2\n")
	fs := &fakeStore{}

	g := &Integrator{}
	res := g.FileToStore(context.Background(), file, fs, "dest", []string{"a", "ghost"})

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "ghost") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if !reflect.DeepEqual(fs.insertCols, []string{"a"}) {
		t.Fatalf("insert columns = %v, want [a]", fs.insertCols)
	}
}

func TestFileToStore_InsertErrorBecomesResult(t *testing.T) {
	file := writeFile(t, "a\n1\n")
	fs := &fakeStore{insertErr: errors.New("socket closed")}

	g := &Integrator{}
	res := g.FileToStore(context.Background(), file, fs, "dest", nil)

	if res.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.Message, "socket closed") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestFileToStore_UnparseableValueAfterSampleFailsTransfer(t *testing.T) {
	// Inference samples the first 100 data rows; a bad value on row 101 must
	// fail the transfer, not turn into a typed zero.
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 100; i++ {
		b.WriteString("7\n")
	}
	b.WriteString("abc\n")
	file := writeFile(t, b.String())
	fs := &fakeStore{}

	g := &Integrator{}
	res := g.FileToStore(context.Background(), file, fs, "dest", nil)

	if res.Success {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Message, `"abc"`) || !strings.Contains(res.Message, "row 101") {
		t.Fatalf("message = %q", res.Message)
	}
	if fs.insertCalls != 0 {
		t.Fatalf("insertCalls = %d, want 0", fs.insertCalls)
	}
}

func TestFileToStore_MissingFileBecomesResult(t *testing.T) {
	file := flatfile.New(filepath.Join(t.TempDir(), "absent.csv"), ',')
	fs := &fakeStore{}

	g := &Integrator{}
	res := g.FileToStore(context.Background(), file, fs, "dest", nil)

	if res.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.Message, "not found") {
		t.Fatalf("message = %q", res.Message)
	}
}
