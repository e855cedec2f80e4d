package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"github.com/dgallion1/imgnamer/internal/extract"
	"github.com/dgallion1/imgnamer/internal/llm"
	"github.com/dgallion1/imgnamer/internal/naming"
	"github.com/dgallion1/imgnamer/internal/parser"
	"github.com/dgallion1/imgnamer/internal/presets"
	"github.com/dgallion1/imgnamer/internal/window"
	"github.com/dgallion1/imgnamer/internal/writeback"
)

// ErrTemplateMissingText is returned by ProcessText when the prompt template
// has no {text} placeholder.
var ErrTemplateMissingText = errors.New("prompt template must contain {text}")

// Engine runs preview and apply passes over Markdown documents. It holds
// no per-pass state: every pass builds its own LLM client.
type Engine struct {
	aiDefaults     llm.Settings
	windows        window.Options
	maxPromptChars int

	writer     *writeback.Engine
	resolver   ImageResolver
	presets    presets.Store
	stats      *llm.Stats
	retry      llm.RetryPolicy
	httpClient *http.Client
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Engine)

// WithAIDefaults sets connection settings merged into requests that omit them.
func WithAIDefaults(s llm.Settings) Option { return func(e *Engine) { e.aiDefaults = s } }

func WithWindows(o window.Options) Option { return func(e *Engine) { e.windows = o } }

func WithMaxPromptChars(n int) Option { return func(e *Engine) { e.maxPromptChars = n } }

func WithImageResolver(r ImageResolver) Option { return func(e *Engine) { e.resolver = r } }

func WithPresets(s presets.Store) Option { return func(e *Engine) { e.presets = s } }

func WithStats(s *llm.Stats) Option { return func(e *Engine) { e.stats = s } }

// WithRetryPolicy sets the backoff used by every pass's LLM client.
func WithRetryPolicy(p llm.RetryPolicy) Option { return func(e *Engine) { e.retry = p } }

// WithHTTPClient sets the client used for LLM calls and image downloads.
func WithHTTPClient(hc *http.Client) Option { return func(e *Engine) { e.httpClient = hc } }

func WithLogger(log *slog.Logger) Option { return func(e *Engine) { e.log = log } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		aiDefaults:     llm.DefaultSettings(),
		windows:        window.DefaultOptions(),
		maxPromptChars: extract.DefaultMaxPromptChars,
		resolver:       FileResolver{},
		retry:          llm.DefaultRetryPolicy(),
		httpClient:     &http.Client{},
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.writer = writeback.NewEngine(
		writeback.WithHTTPClient(e.httpClient),
		writeback.WithLogger(e.log),
		writeback.WithClock(e.now),
	)
	return e
}

// Stats returns the shared latency recorder, possibly nil.
func (e *Engine) Stats() *llm.Stats { return e.stats }

// Presets returns the configured preset store, possibly nil.
func (e *Engine) Presets() presets.Store { return e.presets }

// PreviewRequest asks for context, and optionally candidates, for every
// image of a document.
type PreviewRequest struct {
	Path        string             `json:"md_path" validate:"required"`
	Preset      string             `json:"preset,omitempty"`
	AI          llm.Settings       `json:"ai"`
	Naming      *naming.Settings   `json:"naming,omitempty"`
	Runtime     *writeback.Runtime `json:"runtime,omitempty"`
	ContextOnly bool               `json:"context_only,omitempty"`
}

// PreviewItem is one image with its context and candidates.
type PreviewItem struct {
	doctree.ImageRef
	Strategy        extract.Strategy    `json:"strategy"`
	RequestMode     extract.RequestMode `json:"request_mode"`
	NormalizedTitle string              `json:"normalized_title,omitempty"`
	Best            *extract.Candidate  `json:"best,omitempty"`
	Candidates      []extract.Candidate `json:"candidates"`
	ProposedName    string              `json:"proposed_name,omitempty"`
	AIError         *string             `json:"ai_error"`
	AIRaw           string              `json:"ai_raw,omitempty"`
}

// PreviewResult lists every image in document order.
type PreviewResult struct {
	PassID      string        `json:"pass_id"`
	Document    string        `json:"document"`
	Title       string        `json:"title"`
	ContentHash string        `json:"content_hash"`
	Count       int           `json:"count"`
	Items       []PreviewItem `json:"items"`
	Cancelled   bool          `json:"cancelled,omitempty"`
	Logs        []LogEntry    `json:"logs"`
}

// PreviewDocument extracts every image's context and, unless ContextOnly,
// asks the model for candidates. It never mutates the document. Per-image
// failures are reported on the item; a cancelled ctx stops new dispatches
// and the completed items are still returned.
func (e *Engine) PreviewDocument(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	return e.preview(ctx, req, nil)
}

func (e *Engine) preview(ctx context.Context, req PreviewRequest, progress func(done, total int)) (*PreviewResult, error) {
	passID := uuid.NewString()
	log := e.log.With("pass_id", passID, "document", req.Path)
	plog := NewPassLog(log)

	settings, err := e.resolveSettings(ctx, req.Preset, req.AI, req.Naming, req.Runtime)
	if err != nil {
		return nil, err
	}
	strategy, err := extract.ParseStrategy(settings.naming.Strategy)
	if err != nil {
		return nil, &writeback.PreconditionError{Reason: err.Error()}
	}

	doc, err := e.load(req.Path)
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{
		PassID:      passID,
		Document:    doc.Path,
		Title:       doc.Title,
		ContentHash: ContentHashHex(doc.Source),
		Count:       len(doc.Images),
		Items:       make([]PreviewItem, len(doc.Images)),
	}
	now := e.now()
	for i, img := range doc.Images {
		res.Items[i] = PreviewItem{ImageRef: *img, Strategy: strategy, RequestMode: extract.ModeNone, Candidates: []extract.Candidate{}}
	}
	plog.Info(0, fmt.Sprintf("found %d image(s)", len(doc.Images)))

	useModel := !req.ContextOnly && strategy.NeedsModel() && len(doc.Images) > 0
	if !useModel {
		if strategy == extract.Sequential {
			for i, img := range doc.Images {
				e.fill(&res.Items[i], doc, img, extract.SequentialCandidate(img.Alt), settings.naming, now)
			}
		}
		if progress != nil {
			progress(len(doc.Images), len(doc.Images))
		}
		res.Logs = plog.Entries()
		return res, nil
	}

	if err := settings.ai.Validate(); err != nil {
		return nil, &writeback.PreconditionError{Reason: err.Error()}
	}
	client := e.newClient(settings.ai, log)
	assembler := extract.NewAssembler(extract.AssemblerOptions{
		MaxPromptChars: e.maxPromptChars,
		IntentLanguage: settings.naming.IntentLanguage,
	})
	docDir := filepath.Dir(doc.Path)

	var wg sync.WaitGroup
	var done atomic.Int32
	total := len(doc.Images)
	report := func() {
		n := int(done.Add(1))
		if progress != nil {
			progress(n, total)
		}
	}

	for i, img := range doc.Images {
		img := img
		item := &res.Items[i]
		imageURL := ""
		if strategy == extract.Vision && settings.ai.Vision {
			u, err := e.resolver.Resolve(docDir, img.Src)
			if err != nil {
				plog.Warn(img.Index, "vision payload unavailable, using text: "+err.Error())
			} else {
				imageURL = u
			}
		}
		prompt := assembler.Assemble(strategy, extract.ContextFor(doc.Title, img), imageURL)
		item.RequestMode = prompt.Mode
		if prompt.Mode == extract.ModeFallback {
			plog.Info(img.Index, "vision request sent as text")
		}

		wg.Add(1)
		err := client.Submit(ctx, llm.Request{
			System:       prompt.System,
			User:         prompt.User,
			ImageDataURL: prompt.ImageDataURL,
			ExpectJSON:   true,
			Temperature:  0.2,
		}, func(resp *llm.Response, err error) {
			defer wg.Done()
			defer report()
			if err != nil {
				msg := err.Error()
				item.AIError = &msg
				plog.Error(img.Index, "candidate generation failed: "+msg)
				return
			}
			if resp.Err != nil {
				msg := resp.Err.Error()
				item.AIError = &msg
				item.AIRaw = rawText(resp)
				plog.Warn(img.Index, "model reply not understood: "+msg)
			}
			e.fill(item, doc, img, extract.Synthesize(resp, strategy), settings.naming, now)
		})
		if err != nil {
			wg.Done()
			res.Cancelled = true
			for j := i; j < len(res.Items); j++ {
				msg := "not dispatched: pass cancelled"
				res.Items[j].AIError = &msg
			}
			plog.Warn(0, fmt.Sprintf("pass cancelled, %d image(s) not dispatched", len(res.Items)-i))
			break
		}
	}
	wg.Wait()

	res.Logs = plog.Entries()
	return res, nil
}

func (e *Engine) fill(item *PreviewItem, doc *doctree.Document, img *doctree.ImageRef, r extract.Result, ns naming.Settings, now time.Time) {
	item.Candidates = r.Candidates
	item.Best = r.Best
	item.NormalizedTitle = r.NormalizedTitle
	if r.Best != nil {
		item.ProposedName = naming.Render(ns.Template, writeback.Placeholders(doc, img, r.Best.Name, now), ns.Rules)
	}
}

func rawText(resp *llm.Response) string {
	if resp.Text != "" {
		return resp.Text
	}
	return string(resp.Raw)
}

// CandidateRequest describes a single image for interactive naming.
type CandidateRequest struct {
	DocumentTitle  string       `json:"document_title"`
	AboveText      string       `json:"above_text"`
	BelowText      string       `json:"below_text"`
	BetweenText    string       `json:"between_text"`
	ExplicitRefs   []string     `json:"explicit_refs"`
	AltText        string       `json:"alt_text,omitempty"`
	TitleAttr      string       `json:"title_attr,omitempty"`
	VisionSrc      string       `json:"vision_src,omitempty"`
	DocumentDir    string       `json:"document_dir,omitempty"`
	Strategy       string       `json:"strategy,omitempty"`
	IntentLanguage string       `json:"intent_language,omitempty"`
	Preset         string       `json:"preset,omitempty"`
	AI             llm.Settings `json:"ai"`
}

// CandidateResult is the ranked outcome for one image.
type CandidateResult struct {
	NormalizedTitle string              `json:"normalized_title,omitempty"`
	Best            *extract.Candidate  `json:"best,omitempty"`
	Candidates      []extract.Candidate `json:"candidates"`
	RequestMode     extract.RequestMode `json:"request_mode"`
	AIError         string              `json:"ai_error,omitempty"`
	AIRaw           string              `json:"ai_raw,omitempty"`
}

// GenerateCandidates names one image from caller-supplied context.
// Provider failures are returned as errors; an unparseable reply is not.
func (e *Engine) GenerateCandidates(ctx context.Context, req CandidateRequest) (*CandidateResult, error) {
	settings, err := e.resolveSettings(ctx, req.Preset, req.AI, nil, nil)
	if err != nil {
		return nil, err
	}
	stratName := req.Strategy
	if stratName == "" {
		stratName = settings.naming.Strategy
	}
	strategy, err := extract.ParseStrategy(stratName)
	if err != nil {
		return nil, &writeback.PreconditionError{Reason: err.Error()}
	}
	lang := req.IntentLanguage
	if lang == "" {
		lang = settings.naming.IntentLanguage
	}

	c := extract.Context{
		DocumentTitle: req.DocumentTitle,
		AboveText:     req.AboveText,
		BelowText:     req.BelowText,
		BetweenText:   req.BetweenText,
		ExplicitRefs:  req.ExplicitRefs,
		AltText:       req.AltText,
		TitleAttr:     req.TitleAttr,
	}
	if c.ExplicitRefs == nil {
		c.ExplicitRefs = []string{}
	}
	if !strategy.NeedsModel() {
		r := extract.SequentialCandidate(req.AltText)
		return &CandidateResult{NormalizedTitle: r.NormalizedTitle, Best: r.Best, Candidates: r.Candidates, RequestMode: extract.ModeNone}, nil
	}
	if err := settings.ai.Validate(); err != nil {
		return nil, &writeback.PreconditionError{Reason: err.Error()}
	}

	imageURL := ""
	if strategy == extract.Vision && settings.ai.Vision && req.VisionSrc != "" {
		if u, err := e.resolver.Resolve(req.DocumentDir, req.VisionSrc); err == nil {
			imageURL = u
		} else {
			e.log.Warn("vision payload unavailable", "src", req.VisionSrc, "error", err)
		}
	}

	prompt := extract.NewAssembler(extract.AssemblerOptions{
		MaxPromptChars: e.maxPromptChars,
		IntentLanguage: lang,
	}).Assemble(strategy, c, imageURL)

	client := e.newClient(settings.ai, e.log)
	resp, err := client.Complete(ctx, llm.Request{
		System:       prompt.System,
		User:         prompt.User,
		ImageDataURL: prompt.ImageDataURL,
		ExpectJSON:   true,
		Temperature:  0.2,
	})
	if err != nil {
		return nil, err
	}

	r := extract.Synthesize(resp, strategy)
	out := &CandidateResult{
		NormalizedTitle: r.NormalizedTitle,
		Best:            r.Best,
		Candidates:      r.Candidates,
		RequestMode:     prompt.Mode,
	}
	if resp.Err != nil {
		out.AIError = resp.Err.Error()
		out.AIRaw = rawText(resp)
	}
	return out, nil
}

// ProcessTextRequest is a single-shot text transform.
type ProcessTextRequest struct {
	PromptTemplate string       `json:"prompt_template" validate:"required"`
	Content        string       `json:"content"`
	Preset         string       `json:"preset,omitempty"`
	AI             llm.Settings `json:"ai"`
}

type ProcessTextResult struct {
	Result string `json:"result"`
}

// ProcessText substitutes content for {text} in the template and returns
// the model's flattened reply.
func (e *Engine) ProcessText(ctx context.Context, req ProcessTextRequest) (*ProcessTextResult, error) {
	if !strings.Contains(req.PromptTemplate, "{text}") {
		return nil, ErrTemplateMissingText
	}
	settings, err := e.resolveSettings(ctx, req.Preset, req.AI, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := settings.ai.Validate(); err != nil {
		return nil, &writeback.PreconditionError{Reason: err.Error()}
	}

	client := e.newClient(settings.ai, e.log)
	resp, err := client.Complete(ctx, llm.Request{
		User: strings.ReplaceAll(req.PromptTemplate, "{text}", req.Content),
	})
	if err != nil {
		return nil, err
	}
	if resp.Text == "" && resp.Err != nil {
		return nil, resp.Err
	}
	return &ProcessTextResult{Result: strings.TrimSpace(resp.Text)}, nil
}

// ApplyRequest carries the user's accepted names.
type ApplyRequest struct {
	Path         string             `json:"md_path" validate:"required"`
	Chosen       map[int]string     `json:"chosen_map"`
	SkipIndexes  []int              `json:"skip_indexes"`
	ExpectedHash string             `json:"content_hash,omitempty"`
	Preset       string             `json:"preset,omitempty"`
	Naming       *naming.Settings   `json:"naming,omitempty"`
	Runtime      *writeback.Runtime `json:"runtime,omitempty"`
}

type ApplyResult struct {
	Document    string     `json:"document"`
	Updated     bool       `json:"updated"`
	Applied     []int      `json:"applied"`
	SkipIndexes []int      `json:"skip_indexes"`
	Backup      string     `json:"backup,omitempty"`
	Logs        []LogEntry `json:"logs"`
}

// ApplyDocument rewrites the chosen images. When ExpectedHash is set and the
// document changed since the preview that produced it, nothing is written.
func (e *Engine) ApplyDocument(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	log := e.log.With("pass_id", uuid.NewString(), "document", req.Path)
	plog := NewPassLog(log)

	settings, err := e.resolveSettings(ctx, req.Preset, llm.Settings{}, req.Naming, req.Runtime)
	if err != nil {
		return nil, err
	}
	doc, err := e.load(req.Path)
	if err != nil {
		return nil, err
	}
	if req.ExpectedHash != "" && req.ExpectedHash != ContentHashHex(doc.Source) {
		return nil, &writeback.PreconditionError{Reason: "document changed since preview"}
	}

	wres, err := e.writer.Apply(ctx, doc, writeback.Request{
		Chosen:  req.Chosen,
		Skip:    req.SkipIndexes,
		Runtime: settings.runtime,
		Naming:  settings.naming,
	}, plog)
	if wres == nil {
		return nil, err
	}
	res := &ApplyResult{
		Document:    doc.Path,
		Updated:     wres.Updated,
		Applied:     wres.Applied,
		SkipIndexes: wres.Skipped,
		Backup:      wres.Backup,
		Logs:        plog.Entries(),
	}
	return res, err
}

// RestoreRequest undoes recorded file moves for one document.
type RestoreRequest struct {
	Path    string             `json:"md_path" validate:"required"`
	Runtime *writeback.Runtime `json:"runtime,omitempty"`
}

type RestoreResult struct {
	writeback.RestoreResult
	Document string     `json:"document"`
	Logs     []LogEntry `json:"logs"`
}

func (e *Engine) RestoreDocument(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	plog := NewPassLog(e.log.With("document", req.Path))
	rt := writeback.DefaultRuntime()
	if req.Runtime != nil {
		rt = *req.Runtime
	}
	r, err := e.writer.Restore(ctx, req.Path, rt, plog)
	if r == nil {
		return nil, err
	}
	return &RestoreResult{RestoreResult: *r, Document: req.Path, Logs: plog.Entries()}, err
}

// NormalizeRequest converts <img> tags to Markdown image syntax.
type NormalizeRequest struct {
	Path    string             `json:"md_path" validate:"required"`
	Runtime *writeback.Runtime `json:"runtime,omitempty"`
}

type NormalizeResult struct {
	writeback.NormalizeResult
	Document string     `json:"document"`
	Logs     []LogEntry `json:"logs"`
}

func (e *Engine) NormalizeHTML(_ context.Context, req NormalizeRequest) (*NormalizeResult, error) {
	plog := NewPassLog(e.log.With("document", req.Path))
	rt := writeback.DefaultRuntime()
	if req.Runtime != nil {
		rt = *req.Runtime
	}
	r, err := e.writer.NormalizeHTML(req.Path, rt, plog)
	if r == nil {
		return nil, err
	}
	return &NormalizeResult{NormalizeResult: *r, Document: req.Path, Logs: plog.Entries()}, err
}

func (e *Engine) load(path string) (*doctree.Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &writeback.PreconditionError{Reason: "md_path is required"}
	}
	doc, err := parser.ParseFile(path)
	if err != nil {
		return nil, &writeback.PreconditionError{Reason: err.Error()}
	}
	window.Annotate(doc, e.windows)
	return doc, nil
}

func (e *Engine) newClient(s llm.Settings, log *slog.Logger) *llm.Client {
	return llm.NewClient(s,
		llm.WithHTTPClient(e.httpClient),
		llm.WithStats(e.stats),
		llm.WithLogger(log),
		llm.WithRetryPolicy(e.retry),
	)
}

type passSettings struct {
	ai      llm.Settings
	naming  naming.Settings
	runtime writeback.Runtime
}

// resolveSettings layers explicit request fields over the named preset over
// the engine defaults.
func (e *Engine) resolveSettings(ctx context.Context, presetName string, ai llm.Settings, ns *naming.Settings, rt *writeback.Runtime) (passSettings, error) {
	out := passSettings{
		ai:      ai,
		naming:  naming.DefaultSettings(),
		runtime: writeback.DefaultRuntime(),
	}
	if presetName != "" {
		if e.presets == nil {
			return out, &writeback.PreconditionError{Reason: "no preset store configured"}
		}
		p, err := e.presets.Get(ctx, presetName)
		if errors.Is(err, presets.ErrNotFound) {
			return out, &writeback.PreconditionError{Reason: fmt.Sprintf("preset %q not found", presetName)}
		}
		if err != nil {
			return out, fmt.Errorf("load preset: %w", err)
		}
		out.ai = out.ai.Merge(p.AI)
		out.naming = p.Naming
		out.runtime = p.Runtime
	}
	if ns != nil {
		out.naming = *ns
	}
	if rt != nil {
		out.runtime = *rt
	}
	out.ai = out.ai.Merge(e.aiDefaults).WithDefaults()
	if out.naming.Strategy == "" {
		out.naming.Strategy = naming.DefaultSettings().Strategy
	}
	out.naming = out.naming.WithDefaults()
	return out, nil
}
