package writeback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"github.com/dgallion1/imgnamer/internal/naming"
	"github.com/dgallion1/imgnamer/internal/window"
)

// Runtime controls what an apply pass is allowed to touch.
type Runtime struct {
	Backup          bool    `json:"backup" yaml:"backup"`
	Download        bool    `json:"download" yaml:"download"`
	RenameFiles     bool    `json:"rename_files" yaml:"rename_files"`
	AttachDirName   string  `json:"attach_dir_name" yaml:"attach_dir_name"`
	DownloadTimeout float64 `json:"download_timeout" yaml:"download_timeout"` // seconds
}

func DefaultRuntime() Runtime {
	return Runtime{
		Backup:          true,
		RenameFiles:     true,
		AttachDirName:   "attachment",
		DownloadTimeout: 30,
	}
}

func (r Runtime) attachDir() string {
	name := strings.Trim(strings.TrimSpace(r.AttachDirName), `/\`)
	if name == "" || name == "." || strings.Contains(name, "..") {
		return "attachment"
	}
	return filepath.FromSlash(name)
}

// Request is one apply call: index → accepted intent, plus indices to leave
// alone.
type Request struct {
	Chosen  map[int]string
	Skip    []int
	Runtime Runtime
	Naming  naming.Settings
}

// Result reports what an apply call changed.
type Result struct {
	Updated bool   `json:"updated"`
	Applied []int  `json:"applied"`
	Skipped []int  `json:"skip_indexes"`
	Backup  string `json:"backup,omitempty"`
}

// PreconditionError aborts an apply call before anything is written.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "precondition failed: " + e.Reason }

// Recorder receives per-image diagnostics. Index 0 means the whole pass.
type Recorder interface {
	Record(level slog.Level, index int, msg string)
}

type nopRecorder struct{}

func (nopRecorder) Record(slog.Level, int, string) {}

// Engine rewrites image references in Markdown documents.
type Engine struct {
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Engine)

// WithHTTPClient sets the client used for image downloads.
func WithHTTPClient(hc *http.Client) Option { return func(e *Engine) { e.httpClient = hc } }

func WithLogger(log *slog.Logger) Option { return func(e *Engine) { e.log = log } }

// WithClock replaces time.Now for backup names and {date}/{time}.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		httpClient: &http.Client{},
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type edit struct {
	start, end int
	text       string
}

// Apply runs Validating → Backing-up → Rewriting → Done. A precondition or
// backup failure aborts before any mutation. Per-image failures are
// recorded and leave that index out of Applied; completed rewrites are kept.
func (e *Engine) Apply(ctx context.Context, doc *doctree.Document, req Request, rec Recorder) (*Result, error) {
	if rec == nil {
		rec = nopRecorder{}
	}
	if err := validate(doc, req); err != nil {
		return nil, err
	}

	res := &Result{Applied: []int{}, Skipped: sortedCopy(req.Skip)}
	indices := make([]int, 0, len(req.Chosen))
	for idx := range req.Chosen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	if len(indices) == 0 {
		return res, nil
	}

	docDir := absDir(doc.Path)
	attachDir := filepath.Join(docDir, req.Runtime.attachDir())
	settings := req.Naming.WithDefaults()
	now := e.now()

	plans, resolver := e.plan(doc, indices, req, settings, attachDir, now, rec)

	if req.Runtime.Backup && anyMutation(doc.Source, docDir, plans) {
		backup, err := e.backup(doc, plans, attachDir, now)
		if err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		res.Backup = backup
		rec.Record(slog.LevelInfo, 0, "backup written: "+backup)
	}

	moves, err := loadMoves(attachDir)
	if err != nil {
		rec.Record(slog.LevelWarn, 0, "move map unreadable, starting fresh: "+err.Error())
		moves = moveMap{}
	}
	movesChanged := false

	// Links already settled in this pass, by local source and by URL.
	placed := make(map[string]string)
	fetched := make(map[string]fetchResult)

	var edits []edit
	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			rec.Record(slog.LevelWarn, p.img.Index, "cancelled before rewrite")
			continue
		}
		newSrc := ""
		touched := false
		switch p.action {
		case actionAlt:
		case actionMove, actionCopy:
			relocate := e.moveLocal
			if p.action == actionCopy {
				relocate = e.copyLocal
			}
			if err := relocate(p, docDir, moves, now); err != nil {
				rec.Record(slog.LevelError, p.img.Index, err.Error())
				continue
			}
			movesChanged, touched = true, true
			newSrc = relSlash(docDir, p.target)
			placed[p.source] = newSrc
		case actionKeep:
			newSrc = relSlash(docDir, p.target)
			placed[p.source] = newSrc
		case actionShare:
			rel, ok := placed[p.source]
			if !ok {
				rec.Record(slog.LevelError, p.img.Index, "shared file was not relocated, link kept")
				continue
			}
			newSrc = rel
		case actionDownload:
			f, ok := fetched[p.img.Src]
			if !ok {
				owner := strconv.Itoa(p.img.Index)
				resolve := func(n string) string { return resolver.Resolve(owner, n) }
				saved, err := e.download(ctx, p.img.Src, attachDir, p.name, req.Runtime, resolve, moves, now)
				if err == nil {
					movesChanged, touched = true, true
					saved = relSlash(docDir, saved)
				}
				f = fetchResult{rel: saved, err: err}
				fetched[p.img.Src] = f
			}
			if f.err != nil {
				rec.Record(slog.LevelError, p.img.Index, "download failed, remote link kept: "+f.err.Error())
				continue
			}
			newSrc = f.rel
		}

		imgEdits := rewrite(doc.Source, p.img, newSrc, p.name, p.action == actionAlt)
		if len(imgEdits) == 0 && !touched {
			rec.Record(slog.LevelInfo, p.img.Index, "already up to date")
			continue
		}
		edits = append(edits, imgEdits...)
		res.Applied = append(res.Applied, p.img.Index)
		rec.Record(slog.LevelInfo, p.img.Index, fmt.Sprintf("applied %q", p.name))
	}

	if movesChanged {
		if err := saveMoves(attachDir, moves); err != nil {
			rec.Record(slog.LevelError, 0, "save move map: "+err.Error())
		}
	}

	out := applyEdits(doc.Source, edits)
	if string(out) == string(doc.Source) {
		return res, nil
	}
	if err := writeAtomic(doc.Path, out); err != nil {
		return res, fmt.Errorf("write document: %w", err)
	}
	doc.Source = out
	res.Updated = true
	return res, nil
}

func validate(doc *doctree.Document, req Request) error {
	if doc == nil || doc.Path == "" {
		return &PreconditionError{Reason: "document path is required"}
	}
	skip := make(map[int]bool, len(req.Skip))
	for _, idx := range req.Skip {
		if doc.Image(idx) == nil {
			return &PreconditionError{Reason: fmt.Sprintf("skip index %d out of range 1..%d", idx, len(doc.Images))}
		}
		skip[idx] = true
	}
	for idx, name := range req.Chosen {
		if doc.Image(idx) == nil {
			return &PreconditionError{Reason: fmt.Sprintf("chosen index %d out of range 1..%d", idx, len(doc.Images))}
		}
		if skip[idx] {
			return &PreconditionError{Reason: fmt.Sprintf("index %d is both chosen and skipped", idx)}
		}
		if strings.TrimSpace(name) == "" {
			return &PreconditionError{Reason: fmt.Sprintf("chosen name for index %d is empty", idx)}
		}
	}
	return nil
}

type action int

const (
	actionAlt      action = iota // rewrite alt text only
	actionMove                   // move/rename a local file
	actionCopy                   // copy a local file other images still use
	actionKeep                   // local file already carries the name
	actionShare                  // follow an earlier plan for the same file
	actionDownload               // fetch a remote image
)

type plan struct {
	img    *doctree.ImageRef
	name   string // rendered name without extension
	action action
	source string // resolved local file
	target string // absolute destination for local files
}

type fetchResult struct {
	rel string
	err error
}

// anyMutation reports whether any plan would change the document or the
// filesystem.
func anyMutation(src []byte, docDir string, plans []plan) bool {
	for _, p := range plans {
		switch p.action {
		case actionMove, actionCopy, actionDownload:
			return true
		case actionAlt:
			if len(rewrite(src, p.img, "", p.name, true)) > 0 {
				return true
			}
		case actionKeep, actionShare:
			if len(rewrite(src, p.img, relSlash(docDir, p.target), p.name, false)) > 0 {
				return true
			}
		}
	}
	return false
}

// plan decides each image's action without touching the filesystem. The
// returned resolver keeps reserving names for downloads.
func (e *Engine) plan(doc *doctree.Document, indices []int, req Request, settings naming.Settings, attachDir string, now time.Time, rec Recorder) ([]plan, *naming.CollisionResolver) {
	docDir := absDir(doc.Path)
	resolver := naming.NewCollisionResolver(settings.Separator, func(name string) bool {
		_, err := os.Stat(filepath.Join(attachDir, name))
		return err == nil
	})

	chosen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		chosen[idx] = true
	}
	var others map[string]bool
	if req.Runtime.RenameFiles {
		others = unchosenSources(doc, docDir, chosen)
	}
	first := make(map[string]string) // local source → planned target

	plans := make([]plan, 0, len(indices))
	for _, idx := range indices {
		img := doc.Image(idx)
		ph := Placeholders(doc, img, req.Chosen[idx], now)
		name := naming.Render(settings.Template, ph, settings.Rules)
		if name == "" {
			name = naming.Render("{intent}", ph, settings.Rules)
		}
		p := plan{img: img, name: name}
		sharer := sharedDefinition(doc, img, chosen)

		switch {
		case img.Remote() && !req.Runtime.Download:
		case !img.Remote() && !req.Runtime.RenameFiles:
		case sharer > 0:
			rec.Record(slog.LevelWarn, idx, fmt.Sprintf("reference definition shared with image %d, link left unchanged", sharer))
		case img.Remote():
			p.action = actionDownload
		default:
			local, ok := ResolveLocal(docDir, img.Src)
			if !ok {
				rec.Record(slog.LevelError, idx, "local image not found: "+img.Src)
				continue
			}
			if target, ok := first[local]; ok {
				p.action, p.source, p.target = actionShare, local, target
				break
			}
			requested := name + strings.ToLower(filepath.Ext(local))
			if sameFile(local, filepath.Join(attachDir, requested)) {
				resolver.Claim(strconv.Itoa(idx), requested)
				p.action, p.source, p.target = actionKeep, local, local
			} else {
				final := resolver.Resolve(strconv.Itoa(idx), requested)
				p.action, p.source, p.target = actionMove, local, filepath.Join(attachDir, final)
				if others[local] {
					p.action = actionCopy
				}
			}
			first[local] = p.target
		}
		plans = append(plans, p)
	}
	return plans, resolver
}

// unchosenSources resolves the local files of images outside the chosen
// set. Those files must stay where they are.
func unchosenSources(doc *doctree.Document, docDir string, chosen map[int]bool) map[string]bool {
	out := make(map[string]bool)
	for _, img := range doc.Images {
		if chosen[img.Index] || img.Remote() {
			continue
		}
		if local, ok := ResolveLocal(docDir, img.Src); ok {
			out[local] = true
		}
	}
	return out
}

// sharedDefinition returns the index of an unchosen image that resolves
// through the same reference definition as img, or 0.
func sharedDefinition(doc *doctree.Document, img *doctree.ImageRef, chosen map[int]bool) int {
	if img.Kind != doctree.KindReference {
		return 0
	}
	for _, other := range doc.Images {
		if other.Kind == doctree.KindReference && other.SrcStart == img.SrcStart && !chosen[other.Index] {
			return other.Index
		}
	}
	return 0
}

// Placeholders builds the template values for one image.
func Placeholders(doc *doctree.Document, img *doctree.ImageRef, intent string, now time.Time) naming.Placeholders {
	snippet := window.TruncateTail(img.AboveText, 24)
	if snippet == "" {
		snippet = window.TruncateHead(img.BelowText, 24)
	}
	return naming.Placeholders{
		naming.KeyTitle:    doc.Title,
		naming.KeySeq:      strconv.Itoa(img.Index),
		naming.KeyIntent:   intent,
		naming.KeyDate:     now.Format("20060102"),
		naming.KeyTime:     now.Format("150405"),
		naming.KeyContext:  snippet,
		naming.KeyFile:     stem(doc.Path),
		naming.KeyOriginal: stem(img.Src),
		naming.KeyBlock:    strconv.Itoa(img.BlockIndex),
		naming.KeyIdx:      strconv.Itoa(img.ImageIndex),
	}
}

func stem(p string) string {
	base := filepath.Base(filepath.FromSlash(p))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func applyEdits(src []byte, edits []edit) []byte {
	if len(edits) == 0 {
		return src
	}
	// Images sharing a reference definition yield the same span more than
	// once; the first edit wins.
	seen := make(map[[2]int]bool, len(edits))
	unique := edits[:0:0]
	for _, ed := range edits {
		key := [2]int{ed.start, ed.end}
		if seen[key] && ed.start != ed.end {
			continue
		}
		seen[key] = true
		unique = append(unique, ed)
	}
	sort.SliceStable(unique, func(i, j int) bool { return unique[i].start > unique[j].start })
	out := append([]byte(nil), src...)
	for _, ed := range unique {
		tail := append([]byte(ed.text), out[ed.end:]...)
		out = append(out[:ed.start], tail...)
	}
	return out
}

func absDir(path string) string {
	dir := filepath.Dir(path)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func relSlash(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func sortedCopy(in []int) []int {
	out := append([]int{}, in...)
	sort.Ints(out)
	return out
}
