package service

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"datasync/internal/schema"
	"datasync/internal/store"
)

type fakeStore struct {
	tables []string
	cols   []schema.Column

	queryCols []string
	queryRows [][]any

	lastSQL     string
	insertCalls int
	closeCalls  int
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Tables(ctx context.Context) ([]string, error) { return f.tables, nil }

func (f *fakeStore) Describe(ctx context.Context, table string) ([]schema.Column, error) {
	return f.cols, nil
}

func (f *fakeStore) Query(ctx context.Context, sql string) ([]string, [][]any, error) {
	f.lastSQL = sql
	return f.queryCols, f.queryRows, nil
}

func (f *fakeStore) EnsureTable(ctx context.Context, table string, cols []schema.Column) error {
	return nil
}

func (f *fakeStore) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	f.insertCalls++
	return int64(len(rows)), nil
}

func (f *fakeStore) Close() { f.closeCalls++ }

var current *fakeStore

func init() {
	store.Register("service-fake", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return current, nil
	})
}

func TestListAndDescribe_CloseConnection(t *testing.T) {
	current = &fakeStore{
		tables: []string{"a", "b"},
		cols:   []schema.Column{{Name: "id", Type: schema.TypeInteger}},
	}
	svc := &Service{}
	ctx := context.Background()
	cfg := store.Config{Kind: "service-fake"}

	tables, err := svc.ListStoreTables(ctx, cfg)
	if err != nil {
		t.Fatalf("ListStoreTables: %v", err)
	}
	if !reflect.DeepEqual(tables, []string{"a", "b"}) {
		t.Fatalf("tables = %v", tables)
	}

	cols, err := svc.DescribeStoreTable(ctx, cfg, "a")
	if err != nil {
		t.Fatalf("DescribeStoreTable: %v", err)
	}
	if len(cols) != 1 || cols[0].Name != "id" {
		t.Fatalf("cols = %+v", cols)
	}

	if current.closeCalls != 2 {
		t.Fatalf("closeCalls = %d, want 2 (one per operation)", current.closeCalls)
	}
}

func TestTestStoreConnection_UnknownKindIsStatusNotError(t *testing.T) {
	svc := &Service{}
	st := svc.TestStoreConnection(context.Background(), store.Config{Kind: "never-registered"})
	if st.Success {
		t.Fatalf("status = %+v", st)
	}
}

func TestPreviewSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n3,4\n"), 0o644); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	svc := &Service{}
	rows, err := svc.PreviewSource(context.Background(), PreviewRequest{
		Source:  "file",
		File:    FileConfig{Path: path},
		Columns: []string{"a"},
	})
	if err != nil {
		t.Fatalf("PreviewSource: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0]["a"] != "1" {
		t.Fatalf("row = %#v", rows[0])
	}
	if _, ok := rows[0]["b"]; ok {
		t.Fatal("unselected column must be filtered out")
	}
}

func TestPreviewSource_HTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.html")
	doc := "<table><tr><th>x</th></tr><tr><td>7</td></tr></table>"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	svc := &Service{}
	rows, err := svc.PreviewSource(context.Background(), PreviewRequest{
		Source: "html",
		File:   FileConfig{Path: path},
	})
	if err != nil {
		t.Fatalf("PreviewSource: %v", err)
	}
	if len(rows) != 1 || rows[0]["x"] != "7" {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestPreviewSource_UnknownSource(t *testing.T) {
	svc := &Service{}
	if _, err := svc.PreviewSource(context.Background(), PreviewRequest{Source: "ftp"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunTransfer_StoreToFile(t *testing.T) {
	current = &fakeStore{
		queryCols: []string{"name", "amount"},
		queryRows: [][]any{{"a", 1.5}, {"b", 2.0}},
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	svc := &Service{}
	res := svc.RunTransfer(context.Background(), TransferRequest{
		Direction: StoreToFile,
		Store:     store.Config{Kind: "service-fake", Database: "db"},
		File:      FileConfig{Path: out},
		Table:     "src",
		Columns:   []string{"name", "amount"},
	})

	if !res.Success || res.Records != 2 {
		t.Fatalf("result = %+v", res)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	if string(raw) != "name,amount\na,1.5\nb,2\n" {
		t.Fatalf("file = %q", raw)
	}
	if current.closeCalls != 1 {
		t.Fatalf("store not closed: %d", current.closeCalls)
	}
}

func TestRunTransfer_FileToStore(t *testing.T) {
	current = &fakeStore{}
	src := filepath.Join(t.TempDir(), "src.csv")
	if err := os.WriteFile(src, []byte("n\n1\n2\n3\n"), 0o644); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	svc := &Service{}
	res := svc.RunTransfer(context.Background(), TransferRequest{
		Direction: FileToStore,
		Store:     store.Config{Kind: "service-fake", Database: "db"},
		File:      FileConfig{Path: src},
		Table:     "dest",
	})

	if !res.Success || res.Records != 3 {
		t.Fatalf("result = %+v", res)
	}
	if current.insertCalls != 1 {
		t.Fatalf("insertCalls = %d", current.insertCalls)
	}
}

func TestRunTransfer_UnknownDirection(t *testing.T) {
	svc := &Service{}
	res := svc.RunTransfer(context.Background(), TransferRequest{Direction: "sideways"})
	if res.Success || !strings.Contains(res.Message, "direction") {
		t.Fatalf("result = %+v", res)
	}
}

func TestFileConfig_DelimiterDefaults(t *testing.T) {
	c := FileConfig{Path: "x.csv"}.client()
	if c.Comma != ',' {
		t.Fatalf("default delimiter = %q", c.Comma)
	}
	c = FileConfig{Path: "x.tsv", Delimiter: "\t"}.client()
	if c.Comma != '\t' {
		t.Fatalf("delimiter = %q", c.Comma)
	}
}
