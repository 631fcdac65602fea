package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/collector"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
	"github.com/andybalholm/brotli"
	"github.com/google/go-cmp/cmp"
)

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h), nil
}

const pageTemplate = `<!DOCTYPE html>
<html><body>
<a href="/">Home</a>
<table>
  <thead><tr><th>Name</th><th>Age</th></tr></thead>
  <tbody>%s</tbody>
</table>
<nav>%s</nav>
<table><tr><td>second table</td></tr></table>
</body></html>`

var listPages = map[string][2]string{
	"1": {
		`<tr><td>Ann</td><td>30</td></tr>`,
		`<a href="/list?page=2" aria-label="Next page">›</a>`,
	},
	"2": {
		`<tr><td>Bob</td><td>41</td></tr><tr><td>Cy "Q"</td><td> 7 </td></tr>`,
		`<a href="list?page=3">  Next  </a>`,
	},
	"3": {
		`<tr><td>Dee</td><td>55</td></tr>`,
		`<a aria-disabled="true" role="button">Next</a>`,
	},
}

func newTableServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		p, ok := listPages[r.URL.Query().Get("page")]
		if !ok {
			p = listPages["1"]
		}
		fmt.Fprintf(w, pageTemplate, p[0], p[1])
	})

	mux.HandleFunc("/buttons", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, pageTemplate, `<tr><td>x</td></tr>`,
			`<button disabled>NEXT</button><a disabled href="/list">next</a><span role="button" onclick="go()">Next</span>`)
	})

	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>no table</p><a href="/list">Next</a></body></html>`)
	})

	mux.HandleFunc("/brotli", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		fmt.Fprintf(bw, pageTemplate, `<tr><td>compressed</td></tr>`, `<button disabled>Next</button>`)
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "text/html")
		w.Write(buf.Bytes())
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func openStatic(t *testing.T, server *httptest.Server, path string) *StaticDocument {
	t.Helper()
	doc := NewStaticDocument(StaticOptions{
		Timeout: 5 * time.Second,
		Headers: staticHeaders{"Cookie": []string{"session=abc"}},
	})
	if err := doc.Open(context.Background(), server.URL+path); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return doc
}

func TestStaticDocument_Rows(t *testing.T) {
	server := newTableServer(t)
	doc := openStatic(t, server, "/list?page=2")
	ctx := context.Background()

	headers, err := doc.Rows(ctx, models.CellHeader)
	if err != nil {
		t.Fatalf("Rows(th) error = %v", err)
	}
	wantHeaders := models.Table{{"Name", "Age"}, {}, {}}
	if diff := cmp.Diff(wantHeaders, headers); diff != "" {
		t.Errorf("表头不一致 (-want +got):\n%s", diff)
	}

	rows, err := doc.Rows(ctx, models.CellData)
	if err != nil {
		t.Fatalf("Rows(td) error = %v", err)
	}
	wantRows := models.Table{{}, {"Bob", "41"}, {`Cy "Q"`, "7"}}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("数据行不一致 (-want +got):\n%s", diff)
	}

	path, _ := doc.Path(ctx)
	if path != "/list" {
		t.Errorf("Path() = %q, want /list", path)
	}
}

func TestStaticDocument_NextControl(t *testing.T) {
	server := newTableServer(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		label     string
		wantErr   error
		wantState models.ControlState
	}{
		{"按aria-label匹配", "/list?page=1", "next", nil, models.ControlState{Found: true}},
		{"按文本匹配", "/list?page=2", "next", nil, models.ControlState{Found: true}},
		{"aria禁用", "/list?page=3", "next", nil, models.ControlState{Found: true, AriaDisabled: "true"}},
		{"原生禁用按钮", "/buttons", "next", nil, models.ControlState{Found: true, NativeDisabled: true}},
		{"找不到控件", "/list?page=1", "suivant", collector.ErrNextControlNotFound, models.ControlState{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := openStatic(t, server, tt.path)
			control, err := doc.NextControl(ctx, tt.label)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NextControl() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextControl() error = %v", err)
			}
			got, err := control.State(ctx)
			if err != nil {
				t.Fatalf("State() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantState, got); diff != "" {
				t.Errorf("控件状态不一致 (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStaticDocument_ClickNotNavigable(t *testing.T) {
	server := newTableServer(t)
	doc := openStatic(t, server, "/list?page=3")

	control, err := doc.NextControl(context.Background(), "next")
	if err != nil {
		t.Fatalf("NextControl() error = %v", err)
	}
	if err := control.Click(context.Background()); !errors.Is(err, collector.ErrControlNotNavigable) {
		t.Errorf("Click() error = %v, want ErrControlNotNavigable", err)
	}
}

func TestStaticDocument_ClickEmitsEvent(t *testing.T) {
	server := newTableServer(t)
	doc := openStatic(t, server, "/list?page=1")
	ctx := context.Background()

	sub, err := doc.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	defer sub.Close()

	control, _ := doc.NextControl(ctx, "next")
	if err := control.Click(ctx); err != nil {
		t.Fatalf("Click() error = %v", err)
	}

	select {
	case ev := <-sub.Events():
		if !ev.IsTableBody() || ev.Added != 3 || ev.Removed != 2 {
			t.Errorf("事件 = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("点击后没有收到表格变化事件")
	}

	rows, _ := doc.Rows(ctx, models.CellData)
	if rows.DataRows() != 2 {
		t.Errorf("点击后应切换到第二页, rows = %v", rows)
	}
}

func TestStaticDocument_NoTable(t *testing.T) {
	server := newTableServer(t)
	doc := openStatic(t, server, "/empty")

	if _, err := doc.Observe(context.Background()); !errors.Is(err, collector.ErrNoTable) {
		t.Errorf("Observe() error = %v, want ErrNoTable", err)
	}
	if _, err := doc.Rows(context.Background(), models.CellData); !errors.Is(err, collector.ErrNoTable) {
		t.Errorf("Rows() error = %v, want ErrNoTable", err)
	}
}

func TestStaticDocument_HTTPError(t *testing.T) {
	server := newTableServer(t)
	doc := NewStaticDocument(StaticOptions{Timeout: 5 * time.Second})

	// 缺少Cookie返回401
	if err := doc.Open(context.Background(), server.URL+"/list"); err == nil {
		t.Error("HTTP错误应返回错误")
	}
}

func TestStaticDocument_Brotli(t *testing.T) {
	server := newTableServer(t)
	doc := openStatic(t, server, "/brotli")

	rows, err := doc.Rows(context.Background(), models.CellData)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if diff := cmp.Diff(models.Table{{}, {"compressed"}}, rows); diff != "" {
		t.Errorf("解压后的内容不一致 (-want +got):\n%s", diff)
	}
}

func TestStaticDocument_EndToEnd(t *testing.T) {
	server := newTableServer(t)
	doc := openStatic(t, server, "/list?page=1")

	outDir := t.TempDir()
	store := state.NewMemoryStore()
	_ = store.SetRunning(context.Background(), doc.TabID())

	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	c := collector.New(doc, store, collector.FileExporter{Dir: outDir}, collector.Options{
		TabID:                    doc.TabID(),
		NextLabel:                "next",
		StallTimeout:             5 * time.Second,
		MissingControlIsLastPage: true,
		Now:                      func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commands := make(chan models.Message, 1)
	go c.Listen(ctx, commands)
	commands <- models.Message{Type: models.MessageLoadData}

	var result models.RunResult
	select {
	case result = <-c.Results():
	case <-time.After(10 * time.Second):
		t.Fatal("等待采集结果超时")
	}

	if result.Reason != models.ReasonCompleted || result.Err != nil {
		t.Fatalf("Reason = %s, Err = %v", result.Reason, result.Err)
	}
	if result.Pages != 3 {
		t.Errorf("Pages = %d, want 3", result.Pages)
	}

	data, err := os.ReadFile(result.File)
	if err != nil {
		t.Fatalf("读取导出文件失败: %v", err)
	}
	want := "\"Name\",\"Age\"\n\"Ann\",\"30\"\n\"Bob\",\"41\"\n\"Cy \"\"Q\"\"\",\"7\"\n\"Dee\",\"55\""
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("CSV内容不一致 (-want +got):\n%s", diff)
	}
	if got := result.File[len(result.File)-len("_list_20261019T083000Z.csv"):]; got != "_list_20261019T083000Z.csv" {
		t.Errorf("文件名 = %s", result.File)
	}
	if running, _ := store.Running(context.Background()); running != "" {
		t.Errorf("运行状态未清除: %q", running)
	}
}

func TestDecodeBody(t *testing.T) {
	plain := []byte("<table></table>")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(plain)
	gw.Close()

	var fl bytes.Buffer
	fw, _ := flate.NewWriter(&fl, flate.DefaultCompression)
	fw.Write(plain)
	fw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write(plain)
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"无压缩", "", plain},
		{"identity", "identity", plain},
		{"gzip", "gzip", gz.Bytes()},
		{"已解压的gzip", "gzip", plain},
		{"deflate", "deflate", fl.Bytes()},
		{"brotli", "BR", br.Bytes()},
		{"未知编码", "zstd", plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.encoding, tt.body)
			if err != nil {
				t.Fatalf("decodeBody() error = %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("decodeBody() = %q", got)
			}
		})
	}
}
