// Package browsertest provides an in-memory browser.Session for tests.
//
// A Site is a fixed set of Pages keyed by URL. Each Page lists flat
// Elements, the rendered source and the network requests observed when it
// loads. Scripts are not executed: ClickScript triggers Element.OnClick, and
// any other script is answered by a handler registered with Site.Handle.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
)

// ScriptFunc answers a script in a fake session.
type ScriptFunc func(s *Session, args []any) (any, error)

// Element is a fake DOM element.
type Element struct {
	// Tag is matched case-insensitively by browser.Tag.
	Tag string

	// Classes are matched by CSS class selectors.
	Classes []string

	// Attrs are returned by Attribute.
	Attrs map[string]string

	// Text is the visible text, matched by browser.TextContains.
	Text string

	// Hidden makes IsVisible report false.
	Hidden bool

	// Data carries test-specific values for script handlers.
	Data map[string]string

	// Frame is the content document of an iframe. When nil, EnterFrame
	// falls back to the page registered for Attrs["src"].
	Frame *Page

	// OnClick runs when the element is clicked through browser.ClickScript.
	OnClick func(s *Session)
}

// Deferred is a request that appears after the log has been polled
// AfterPolls times.
type Deferred struct {
	// AfterPolls is the number of NetworkLog calls before Request appears.
	AfterPolls int

	// Request is the request to log.
	Request browser.NetworkRequest
}

// Page is a fake document.
type Page struct {
	// URL is the address the page is served at.
	URL string

	// Elements are the page's elements in document order.
	Elements []*Element

	// Source is returned by PageSource.
	Source string

	// Requests are logged when the page (or its frame) is loaded.
	Requests []browser.NetworkRequest

	// Deferred requests are logged on later NetworkLog calls.
	Deferred []Deferred

	// NavigateErr makes navigation to this page fail.
	NavigateErr error

	// Delay blocks navigation until it elapses or the context ends.
	Delay time.Duration

	// Panic makes navigation to this page panic.
	Panic bool
}

// Site is a set of fake pages and script handlers shared by sessions.
// It must not be modified once sessions are running.
type Site struct {
	// Pages maps a URL to the page served there.
	Pages map[string]*Page

	// scripts maps a script body to its handler.
	scripts map[string]ScriptFunc
}

// NewSite creates a Site holding pages.
func NewSite(pages ...*Page) *Site {
	s := &Site{Pages: make(map[string]*Page), scripts: make(map[string]ScriptFunc)}
	for _, p := range pages {
		s.Pages[p.URL] = p
	}
	return s
}

// Add registers a page and returns it.
func (s *Site) Add(p *Page) *Page {
	s.Pages[p.URL] = p
	return p
}

// Handle registers fn as the answer to script.
func (s *Site) Handle(script string, fn ScriptFunc) {
	s.scripts[script] = fn
}

// Session is a fake browser.Session over a Site.
type Session struct {
	site    *Site
	factory *Factory
	log     *browser.RequestLog

	mu   sync.Mutex
	page *Page

	// scope is the stack of entered frames.
	scope []*Page

	// handles maps element refs to fake elements.
	handles     map[string]*Element
	nextHandle  int
	polls       int
	released    map[*Deferred]bool
	navigations []string
	scripts     []string
	closes      int
}

var _ browser.Session = (*Session)(nil)

// NewSession creates a standalone fake session over site.
func NewSession(site *Site) *Session {
	return &Session{
		site:     site,
		log:      browser.NewRequestLog(),
		handles:  make(map[string]*Element),
		released: make(map[*Deferred]bool),
	}
}

// Navigate loads the page registered for url.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.navigations = append(s.navigations, url)
	s.mu.Unlock()

	p, ok := s.site.Pages[url]
	if !ok {
		return fmt.Errorf("%w: %s: not found", browser.ErrNavigation, url)
	}
	if p.Panic {
		panic("browsertest: page " + url + " crashed")
	}
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, url, ctx.Err())
		}
	}
	if p.NavigateErr != nil {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, url, p.NavigateErr)
	}

	s.mu.Lock()
	s.page = p
	s.scope = nil
	s.polls = 0
	s.mu.Unlock()
	s.load(p)
	return nil
}

// load emits the page's requests into the log.
func (s *Session) load(p *Page) {
	for _, r := range p.Requests {
		s.log.Add(r)
	}
}

// current is the innermost entered frame, or the page itself.
func (s *Session) current() *Page {
	if n := len(s.scope); n > 0 {
		return s.scope[n-1]
	}
	return s.page
}

// handle returns the stable handle of el, minting one on first use.
// The caller holds s.mu.
func (s *Session) handle(el *Element) browser.Element {
	for ref, known := range s.handles {
		if known == el {
			return browser.NewElement(ref)
		}
	}
	s.nextHandle++
	ref := fmt.Sprintf("el-%d", s.nextHandle)
	s.handles[ref] = el
	return browser.NewElement(ref)
}

// Lookup returns the fake element behind a handle, or nil.
func (s *Session) Lookup(el browser.Element) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[el.Ref()]
}

// FindElements matches loc against the elements of the current scope.
func (s *Session) FindElements(_ context.Context, loc browser.Locator) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current()
	if p == nil {
		return []browser.Element{}, nil
	}
	out := make([]browser.Element, 0)
	for _, el := range p.Elements {
		if matches(el, loc) {
			out = append(out, s.handle(el))
		}
	}
	return out, nil
}

func matches(el *Element, loc browser.Locator) bool {
	switch loc.Kind {
	case browser.ByTag:
		return strings.EqualFold(el.Tag, loc.Value)
	case browser.ByText:
		return loc.Value != "" && strings.Contains(el.Text, loc.Value)
	case browser.ByCSS:
		for _, sel := range strings.Split(loc.Value, ",") {
			if matchSelector(el, strings.TrimSpace(sel)) {
				return true
			}
		}
	}
	return false
}

// matchSelector supports compound selectors of the form
// tag.class1.class2[attr] or [attr="value"].
func matchSelector(el *Element, sel string) bool {
	if sel == "" {
		return false
	}
	var attrs []string
	for {
		open := strings.IndexByte(sel, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(sel[open:], ']')
		if end < 0 {
			return false
		}
		attrs = append(attrs, sel[open+1:open+end])
		sel = sel[:open] + sel[open+end+1:]
	}

	parts := strings.Split(sel, ".")
	if tag := parts[0]; tag != "" && tag != "*" && !strings.EqualFold(tag, el.Tag) {
		return false
	}
	for _, cls := range parts[1:] {
		if !hasClass(el, cls) {
			return false
		}
	}
	for _, a := range attrs {
		name, want, hasValue := strings.Cut(a, "=")
		got, ok := el.Attrs[name]
		if !ok {
			return false
		}
		if hasValue && got != strings.Trim(want, `"'`) {
			return false
		}
	}
	return true
}

func hasClass(el *Element, cls string) bool {
	for _, c := range el.Classes {
		if c == cls {
			return true
		}
	}
	return false
}

// IsVisible reports !Hidden.
func (s *Session) IsVisible(_ context.Context, el browser.Element) (bool, error) {
	e := s.Lookup(el)
	if e == nil {
		return false, fmt.Errorf("browsertest: unknown element %q", el.Ref())
	}
	return !e.Hidden, nil
}

// Attribute returns Attrs[name].
func (s *Session) Attribute(_ context.Context, el browser.Element, name string) (string, bool, error) {
	e := s.Lookup(el)
	if e == nil {
		return "", false, fmt.Errorf("browsertest: unknown element %q", el.Ref())
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

// Text returns the trimmed element text.
func (s *Session) Text(_ context.Context, el browser.Element) (string, error) {
	e := s.Lookup(el)
	if e == nil {
		return "", fmt.Errorf("browsertest: unknown element %q", el.Ref())
	}
	return strings.TrimSpace(e.Text), nil
}

// RunScript answers ClickScript and registered scripts. Unknown scripts
// return nil.
func (s *Session) RunScript(_ context.Context, script string, args ...any) (any, error) {
	s.mu.Lock()
	s.scripts = append(s.scripts, script)
	s.mu.Unlock()

	if script == browser.ClickScript {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: click without element", browser.ErrScript)
		}
		el, ok := args[0].(browser.Element)
		if !ok {
			return nil, fmt.Errorf("%w: click target is not an element", browser.ErrScript)
		}
		e := s.Lookup(el)
		if e == nil {
			return nil, fmt.Errorf("%w: unknown element", browser.ErrScript)
		}
		if e.OnClick != nil {
			e.OnClick(s)
		}
		return true, nil
	}

	if fn, ok := s.site.scripts[script]; ok {
		return fn(s, args)
	}
	return nil, nil
}

// EnterFrame scopes the session to the frame document of el.
func (s *Session) EnterFrame(_ context.Context, el browser.Element) error {
	e := s.Lookup(el)
	if e == nil {
		return fmt.Errorf("%w: unknown element", browser.ErrNoFrame)
	}
	frame := e.Frame
	if frame == nil {
		if src := e.Attrs["src"]; src != "" {
			frame = s.site.Pages[src]
		}
	}
	if frame == nil {
		return browser.ErrNoFrame
	}

	s.mu.Lock()
	s.scope = append(s.scope, frame)
	s.mu.Unlock()
	s.load(frame)
	return nil
}

// ExitFrame pops the current frame scope.
func (s *Session) ExitFrame(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.scope); n > 0 {
		s.scope = s.scope[:n-1]
	}
	return nil
}

// Source returns the source of the current scope.
func (s *Session) Source(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.current(); p != nil {
		return p.Source, nil
	}
	return "", nil
}

// NetworkLog counts a poll, releases due deferred requests and returns the log.
func (s *Session) NetworkLog() []browser.NetworkRequest {
	s.mu.Lock()
	s.polls++
	var due []browser.NetworkRequest
	for _, p := range []*Page{s.page, s.current()} {
		if p == nil {
			continue
		}
		for i := range p.Deferred {
			d := &p.Deferred[i]
			if !s.released[d] && d.AfterPolls <= s.polls {
				s.released[d] = true
				due = append(due, d.Request)
			}
		}
	}
	s.mu.Unlock()

	for _, r := range due {
		s.log.Add(r)
	}
	return s.log.Snapshot()
}

// ClearNetworkLog empties the log.
func (s *Session) ClearNetworkLog() {
	s.log.Clear()
}

// Emit appends a request to the log, as a page script would cause.
func (s *Session) Emit(req browser.NetworkRequest) {
	s.log.Add(req)
}

// Close counts the call.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	first := s.closes == 1
	s.mu.Unlock()
	if first && s.factory != nil {
		s.factory.release()
	}
	return nil
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Navigations returns every URL passed to Navigate.
func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// Scripts returns every script passed to RunScript.
func (s *Session) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

// InFrame reports whether a frame scope is active.
func (s *Session) InFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scope) > 0
}

// Factory creates fake sessions over a Site and tracks them.
type Factory struct {
	site *Site

	// Fail, when set, is consulted before each session is created; a
	// non-nil error is returned instead of a session. n starts at 1.
	Fail func(n int) error

	mu        sync.Mutex
	sessions  []*Session
	active    int
	maxActive int
}

var _ browser.Factory = (*Factory)(nil)

// NewFactory creates a Factory over site.
func NewFactory(site *Site) *Factory {
	return &Factory{site: site}
}

// NewSession creates a fake session.
func (f *Factory) NewSession(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	n := len(f.sessions) + 1
	fail := f.Fail
	f.mu.Unlock()
	if fail != nil {
		if err := fail(n); err != nil {
			f.mu.Lock()
			f.sessions = append(f.sessions, nil)
			f.mu.Unlock()
			return nil, err
		}
	}

	s := NewSession(f.site)
	s.factory = f

	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()
	return s, nil
}

func (f *Factory) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
}

// Sessions returns the sessions created so far, skipping failed attempts.
func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// MaxActive returns the highest number of simultaneously open sessions.
func (f *Factory) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// Active returns the number of sessions not yet closed.
func (f *Factory) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}
