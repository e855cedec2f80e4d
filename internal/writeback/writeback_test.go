package writeback

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"github.com/dgallion1/imgnamer/internal/naming"
	"github.com/dgallion1/imgnamer/internal/parser"
	"github.com/dgallion1/imgnamer/internal/window"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

const pngBytes = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00"

type logEntry struct {
	level slog.Level
	index int
	msg   string
}

type memRecorder struct{ entries []logEntry }

func (r *memRecorder) Record(level slog.Level, index int, msg string) {
	r.entries = append(r.entries, logEntry{level, index, msg})
}

func (r *memRecorder) errorsFor(index int) []string {
	var out []string
	for _, e := range r.entries {
		if e.index == index && e.level >= slog.LevelError {
			out = append(out, e.msg)
		}
	}
	return out
}

func intentOnly() naming.Settings {
	s := naming.DefaultSettings()
	s.Template = "{intent}"
	return s
}

// writeTree creates files under a temp dir and returns its path.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func load(t *testing.T, path string) *doctree.Document {
	t.Helper()
	doc, err := parser.ParseFile(path)
	require.NoError(t, err)
	window.Annotate(doc, window.DefaultOptions())
	return doc
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

const threeImages = `# Guide

Intro paragraph.

![first](img/a.png)

Middle text.

![second](img/b.png)

Closing text.

![third](img/c.png)
`

func threeImageTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"doc.md":    threeImages,
		"img/a.png": "aaa",
		"img/b.png": "bbb",
		"img/c.png": "ccc",
	})
}

func TestApply_RenamesChosenAndSkipsOthers(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")
	rec := &memRecorder{}

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "intro diagram", 3: "summary chart"},
		Skip:    []int{2},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, rec)
	require.NoError(t, err)

	assert.True(t, res.Updated)
	assert.Equal(t, []int{1, 3}, res.Applied)
	assert.Equal(t, []int{2}, res.Skipped)

	out := readFile(t, docPath)
	assert.Contains(t, out, "![first](attachment/intro_diagram.png)")
	assert.Contains(t, out, "![second](img/b.png)")
	assert.Contains(t, out, "![third](attachment/summary_chart.png)")

	assert.Equal(t, "aaa", readFile(t, filepath.Join(dir, "attachment", "intro_diagram.png")))
	assert.Equal(t, "ccc", readFile(t, filepath.Join(dir, "attachment", "summary_chart.png")))
	assert.Equal(t, "bbb", readFile(t, filepath.Join(dir, "img", "b.png")))
	assert.NoFileExists(t, filepath.Join(dir, "img", "a.png"))

	require.NotEmpty(t, res.Backup)
	assert.Equal(t, filepath.Join(dir, "doc.md.20260304-050607.bak"), res.Backup)
	assert.Equal(t, threeImages, readFile(t, res.Backup))
	assert.FileExists(t, filepath.Join(dir, "attachment", ".backup", "20260304-050607", "a.png"))

	moves, err := loadMoves(filepath.Join(dir, "attachment"))
	require.NoError(t, err)
	assert.Len(t, moves, 2)
}

func TestApply_NothingChosenLeavesDocumentUntouched(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{},
		Skip:    []int{1, 2, 3},
		Runtime: DefaultRuntime(),
	}, nil)
	require.NoError(t, err)

	if res.Updated {
		t.Fatal("expected no update")
	}
	if len(res.Applied) != 0 {
		t.Fatalf("expected nothing applied, got %v", res.Applied)
	}
	if got := readFile(t, docPath); got != threeImages {
		t.Fatalf("document changed:\n%s", got)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	if len(entries) != 2 {
		t.Fatalf("expected only doc.md and img/, got %d entries", len(entries))
	}
}

func TestApply_Idempotent(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")
	req := Request{
		Chosen:  map[int]string{1: "intro diagram", 3: "summary chart"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}
	e := newTestEngine()

	_, err := e.Apply(context.Background(), load(t, docPath), req, nil)
	require.NoError(t, err)
	first := readFile(t, docPath)

	res, err := e.Apply(context.Background(), load(t, docPath), req, nil)
	require.NoError(t, err)

	assert.False(t, res.Updated)
	assert.Empty(t, res.Applied, "nothing changed on the second pass")
	assert.Empty(t, res.Backup, "no backup when nothing will change")
	assert.Equal(t, first, readFile(t, docPath))
	assert.NoFileExists(t, filepath.Join(dir, "attachment", "intro_diagram_2.png"))
	assert.NoFileExists(t, filepath.Join(dir, "doc.md.20260304-050607-2.bak"))
}

func TestApply_BackupNeverOverwritten(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")
	e := newTestEngine()

	res1, err := e.Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "intro diagram"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	afterFirst := readFile(t, docPath)

	res2, err := e.Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{2: "gateway"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "doc.md.20260304-050607.bak"), res1.Backup)
	assert.Equal(t, filepath.Join(dir, "doc.md.20260304-050607-2.bak"), res2.Backup)
	assert.Equal(t, threeImages, readFile(t, res1.Backup), "first backup unchanged")
	assert.Equal(t, afterFirst, readFile(t, res2.Backup))
}

func TestApply_SharedFileWithSkippedImageIsCopied(t *testing.T) {
	const body = "![a](img/a.png)\n\nBetween.\n\n![b](img/a.png)\n"
	dir := writeTree(t, map[string]string{"doc.md": body, "img/a.png": "aaa"})
	docPath := filepath.Join(dir, "doc.md")

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "first"},
		Skip:    []int{2},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Applied)
	assert.Equal(t, "![a](attachment/first.png)\n\nBetween.\n\n![b](img/a.png)\n", readFile(t, docPath))
	assert.Equal(t, "aaa", readFile(t, filepath.Join(dir, "img", "a.png")), "skipped image still resolves")
	assert.Equal(t, "aaa", readFile(t, filepath.Join(dir, "attachment", "first.png")))

	// Undoing a copy removes it and leaves the original alone.
	rr, err := newTestEngine().Restore(context.Background(), docPath, Runtime{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Restored)
	assert.Equal(t, body, readFile(t, docPath))
	assert.NoFileExists(t, filepath.Join(dir, "attachment", "first.png"))
	assert.FileExists(t, filepath.Join(dir, "img", "a.png"))
}

func TestApply_SharedFileChosenTwice(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"doc.md":    "![a](img/a.png)\n\nBetween.\n\n![b](img/a.png)\n",
		"img/a.png": "aaa",
	})
	docPath := filepath.Join(dir, "doc.md")
	rec := &memRecorder{}

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "first", 2: "second"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, res.Applied)
	assert.Empty(t, rec.errorsFor(2))
	assert.Equal(t, "![a](attachment/first.png)\n\nBetween.\n\n![b](attachment/first.png)\n", readFile(t, docPath))
	assert.NoFileExists(t, filepath.Join(dir, "attachment", "second.png"))
}

func TestApply_ReferenceImages(t *testing.T) {
	const body = "Chart ![sales][fig] and ![logo].\n\n[fig]: img/a.png \"Sales\"\n[logo]: img/b.png\n"
	dir := writeTree(t, map[string]string{"doc.md": body, "img/a.png": "aaa", "img/b.png": "bbb"})
	docPath := filepath.Join(dir, "doc.md")

	doc := load(t, docPath)
	require.Len(t, doc.Images, 2)

	res, err := newTestEngine().Apply(context.Background(), doc, Request{
		Chosen:  map[int]string{1: "sales chart"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Applied)
	assert.Equal(t, "Chart ![sales][fig] and ![logo].\n\n[fig]: attachment/sales_chart.png \"Sales\"\n[logo]: img/b.png\n", readFile(t, docPath))

	// Alt-only rewrite keeps the shortcut form resolvable.
	res, err = newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{2: "brand mark"},
		Runtime: Runtime{},
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Applied)
	out := readFile(t, docPath)
	assert.Contains(t, out, "![brand_mark][logo]")
	assert.Len(t, parser.Parse([]byte(out), docPath).Images, 2)
}

func TestApply_SharedReferenceDefinitionLeftWhenPartlyChosen(t *testing.T) {
	const body = "![one][d] and ![two][d]\n\n[d]: img/a.png\n"
	dir := writeTree(t, map[string]string{"doc.md": body, "img/a.png": "aaa"})
	docPath := filepath.Join(dir, "doc.md")
	rec := &memRecorder{}

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "first"},
		Skip:    []int{2},
		Runtime: Runtime{RenameFiles: true},
		Naming:  intentOnly(),
	}, rec)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Applied)
	assert.Equal(t, "![first][d] and ![two][d]\n\n[d]: img/a.png\n", readFile(t, docPath), "only the alt text changes")
	assert.FileExists(t, filepath.Join(dir, "img", "a.png"))
	assert.NoFileExists(t, filepath.Join(dir, "attachment", "first.png"))
	require.Len(t, rec.entries, 2)
	assert.Equal(t, slog.LevelWarn, rec.entries[0].level)

	res, err = newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "first", 2: "second"},
		Runtime: Runtime{RenameFiles: true},
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Applied)
	assert.Equal(t, "![first][d] and ![two][d]\n\n[d]: attachment/first.png\n", readFile(t, docPath))
}

func TestApply_OverlappingSetsRejected(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")

	_, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "x", 2: "y"},
		Skip:    []int{2},
		Runtime: DefaultRuntime(),
	}, nil)

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe), "expected PreconditionError, got %v", err)
	assert.Contains(t, pe.Reason, "both chosen and skipped")
	assert.Equal(t, threeImages, readFile(t, docPath))
	assert.NoDirExists(t, filepath.Join(dir, "attachment"))
	assert.NoFileExists(t, filepath.Join(dir, "doc.md.20260304-050607.bak"))
}

func TestApply_IndexOutOfRange(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")

	for _, req := range []Request{
		{Chosen: map[int]string{4: "x"}},
		{Chosen: map[int]string{0: "x"}},
		{Skip: []int{9}},
		{Chosen: map[int]string{1: "  "}},
	} {
		_, err := newTestEngine().Apply(context.Background(), load(t, docPath), req, nil)
		var pe *PreconditionError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PreconditionError for %+v, got %v", req, err)
		}
	}
	assert.Equal(t, threeImages, readFile(t, docPath))
}

func TestApply_CollisionSuffixes(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"doc.md":                "![](a.png)\n\n![](b.png)\n\n![](c.png)\n",
		"a.png":                 "a",
		"b.png":                 "b",
		"c.png":                 "c",
		"attachment/chart.png":  "existing",
		"attachment/other.png":  "other",
		"attachment/notes.txt":  "n",
		"attachment/chart_3.md": "x",
	})
	docPath := filepath.Join(dir, "doc.md")

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "chart", 2: "Chart", 3: "chart"},
		Runtime: Runtime{RenameFiles: true},
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Applied)

	out := readFile(t, docPath)
	assert.Contains(t, out, "![](attachment/chart_2.png)")
	assert.Contains(t, out, "![](attachment/chart_3.png)")
	assert.Contains(t, out, "![](attachment/chart_4.png)")
	assert.Equal(t, "existing", readFile(t, filepath.Join(dir, "attachment", "chart.png")))
	assert.Empty(t, res.Backup)
}

func TestApply_MissingLocalFileExcluded(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"doc.md":   "![gone](img/missing.png)\n\n![here](here.png)\n",
		"here.png": "h",
	})
	docPath := filepath.Join(dir, "doc.md")
	rec := &memRecorder{}

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "gone", 2: "here"},
		Runtime: Runtime{RenameFiles: true},
		Naming:  intentOnly(),
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, res.Applied)
	assert.NotEmpty(t, rec.errorsFor(1))
	assert.Contains(t, readFile(t, docPath), "![gone](img/missing.png)")
}

func TestApply_AltOnlyWhenRenameDisabled(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"doc.md": "![old](a.png)\n\n<img src=\"b.png\">\n\n![[c.png]]\n\n![x](https://example.com/p.png)\n",
		"a.png":  "a",
		"b.png":  "b",
		"c.png":  "c",
	})
	docPath := filepath.Join(dir, "doc.md")

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "first [one]", 2: "logo", 3: "third", 4: "remote pic"},
		Runtime: Runtime{},
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, res.Applied)

	out := readFile(t, docPath)
	assert.Contains(t, out, `![first_\[one\]](a.png)`)
	assert.Contains(t, out, `<img alt="logo" src="b.png">`)
	assert.Contains(t, out, "![[c.png|third]]")
	assert.Contains(t, out, "![remote_pic](https://example.com/p.png)")
	assert.FileExists(t, filepath.Join(dir, "a.png"))
}

func TestApply_DownloadsRemoteImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Accept"), "image/") {
			t.Errorf("unexpected Accept header %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(pngBytes))
	}))
	defer srv.Close()

	dir := writeTree(t, map[string]string{
		"doc.md": "![remote](" + srv.URL + "/pic?id=3)\n",
	})
	docPath := filepath.Join(dir, "doc.md")
	rt := DefaultRuntime()
	rt.Download = true

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "network map"},
		Runtime: rt,
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Applied)
	assert.Equal(t, "![remote](attachment/network_map.png)\n", readFile(t, docPath))
	assert.Equal(t, pngBytes, readFile(t, filepath.Join(dir, "attachment", "network_map.png")))

	moves, err := loadMoves(filepath.Join(dir, "attachment"))
	require.NoError(t, err)
	entry := moves["remote:"+srv.URL+"/pic?id=3"]
	require.NotNil(t, entry)
	assert.Equal(t, "attachment/network_map.png", entry.TargetRel)
}

func TestApply_SameURLDownloadedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(pngBytes))
	}))
	defer srv.Close()

	url := srv.URL + "/shared.png"
	dir := writeTree(t, map[string]string{"doc.md": "![a](" + url + ")\n\n![b](" + url + ")\n"})
	docPath := filepath.Join(dir, "doc.md")
	rt := DefaultRuntime()
	rt.Download = true

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "topology", 2: "topology again"},
		Runtime: rt,
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, res.Applied)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, "![a](attachment/topology.png)\n\n![b](attachment/topology.png)\n", readFile(t, docPath))
	assert.NoFileExists(t, filepath.Join(dir, "attachment", "topology_again.png"))
}

func TestApply_DownloadFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/text.png" {
			_, _ = w.Write([]byte("<html>not an image</html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	doc := "![a](" + srv.URL + "/missing.png)\n\n![b](" + srv.URL + "/text.png)\n\n![c](local.png)\n"
	dir := writeTree(t, map[string]string{"doc.md": doc, "local.png": "l"})
	docPath := filepath.Join(dir, "doc.md")
	rec := &memRecorder{}
	rt := DefaultRuntime()
	rt.Download = true

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "a", 2: "b", 3: "c"},
		Runtime: rt,
		Naming:  intentOnly(),
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, res.Applied)
	assert.NotEmpty(t, rec.errorsFor(1))
	assert.NotEmpty(t, rec.errorsFor(2))
	out := readFile(t, docPath)
	assert.Contains(t, out, srv.URL+"/missing.png")
	assert.Contains(t, out, srv.URL+"/text.png")
	assert.Contains(t, out, "![c](attachment/c.png)")
}

func TestApply_NonUTF8DocumentBackedUpVerbatim(t *testing.T) {
	// "图表" in GB18030 followed by an image line.
	raw := "\xcd\xbc\xb1\xed\n\n![x](a.png)\n"
	dir := writeTree(t, map[string]string{"doc.md": raw, "a.png": "a"})
	docPath := filepath.Join(dir, "doc.md")

	res, err := newTestEngine().Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "pic"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, raw, readFile(t, res.Backup))
	assert.Equal(t, "图表\n\n![x](attachment/pic.png)\n", readFile(t, docPath))
}

func TestRestore_RoundTrip(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")
	e := newTestEngine()

	_, err := e.Apply(context.Background(), load(t, docPath), Request{
		Chosen:  map[int]string{1: "intro diagram", 3: "summary chart"},
		Runtime: DefaultRuntime(),
		Naming:  intentOnly(),
	}, nil)
	require.NoError(t, err)
	require.NotEqual(t, threeImages, readFile(t, docPath))

	res, err := e.Restore(context.Background(), docPath, DefaultRuntime(), nil)
	require.NoError(t, err)

	assert.True(t, res.Updated)
	assert.Equal(t, 2, res.Restored)
	assert.NotEmpty(t, res.Backup)
	assert.Equal(t, threeImages, readFile(t, docPath))
	assert.Equal(t, "aaa", readFile(t, filepath.Join(dir, "img", "a.png")))
	assert.Equal(t, "ccc", readFile(t, filepath.Join(dir, "img", "c.png")))
	assert.NoFileExists(t, filepath.Join(dir, "attachment", "intro_diagram.png"))

	moves, err := loadMoves(filepath.Join(dir, "attachment"))
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestRestore_FollowsRepeatedRenames(t *testing.T) {
	dir := threeImageTree(t)
	docPath := filepath.Join(dir, "doc.md")
	e := newTestEngine()
	req := Request{Chosen: map[int]string{1: "first name"}, Runtime: Runtime{RenameFiles: true}, Naming: intentOnly()}

	_, err := e.Apply(context.Background(), load(t, docPath), req, nil)
	require.NoError(t, err)
	req.Chosen[1] = "second name"
	_, err = e.Apply(context.Background(), load(t, docPath), req, nil)
	require.NoError(t, err)
	assert.Contains(t, readFile(t, docPath), "![first](attachment/second_name.png)")

	res, err := e.Restore(context.Background(), docPath, Runtime{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restored)
	assert.Equal(t, threeImages, readFile(t, docPath))
}

func TestRestore_NothingRecorded(t *testing.T) {
	dir := threeImageTree(t)
	res, err := newTestEngine().Restore(context.Background(), filepath.Join(dir, "doc.md"), DefaultRuntime(), nil)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Zero(t, res.Restored)
}

func TestNormalizeHTML(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"doc.md": "Before <img src=\"my pic.png\" alt=\"a [b]\" title='say \"hi\"'> after\n\n![kept](k.png)\n",
	})
	docPath := filepath.Join(dir, "doc.md")

	res, err := newTestEngine().NormalizeHTML(docPath, DefaultRuntime(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Converted)
	assert.True(t, res.Updated)
	assert.FileExists(t, res.Backup)
	assert.Equal(t, "Before ![a \\[b\\]](<my pic.png> \"say \\\"hi\\\"\") after\n\n![kept](k.png)\n", readFile(t, docPath))
}

func TestPlaceholders(t *testing.T) {
	doc := &doctree.Document{Path: "/notes/deploy.md", Title: "Deploy Guide"}
	img := &doctree.ImageRef{Index: 3, Src: "img/old%20name.png?raw=1", BlockIndex: 2, ImageIndex: 1, AboveText: "the cluster topology"}

	ph := Placeholders(doc, img, "topology", fixedNow)
	assert.Equal(t, "Deploy Guide", ph[naming.KeyTitle])
	assert.Equal(t, "3", ph[naming.KeySeq])
	assert.Equal(t, "20260304", ph[naming.KeyDate])
	assert.Equal(t, "050607", ph[naming.KeyTime])
	assert.Equal(t, "deploy", ph[naming.KeyFile])
	assert.Equal(t, "old%20name", ph[naming.KeyOriginal])
	assert.Equal(t, "the cluster topology", ph[naming.KeyContext])

	got := naming.Render(naming.DefaultTemplate, ph, naming.DefaultRules())
	if got != "deploy_guide_03_topology" {
		t.Fatalf("expected deploy_guide_03_topology, got %s", got)
	}
}

func TestResolveLocal(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"my pic.png":          "1",
		"deep/nested/fig.png": "2",
		".backup/only.png":    "3",
	})

	p, ok := ResolveLocal(dir, "my%20pic.png")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "my pic.png"), p)

	p, ok = ResolveLocal(dir, "elsewhere/fig.png")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "deep", "nested", "fig.png"), p)

	_, ok = ResolveLocal(dir, "only.png")
	assert.False(t, ok, "hidden directories are not searched")

	_, ok = ResolveLocal(dir, "")
	assert.False(t, ok)
}
