package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/mailru/easyjson"
)

// Default launch values.
const (
	DefaultOpTimeout    = 30 * time.Second
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
)

// Launcher starts chromedp-backed Sessions. Each Session gets its own
// browser process so state never leaks between channels.
type Launcher struct {
	// headless runs Chrome without a window.
	headless bool

	// execPath is the Chrome executable; empty searches PATH.
	execPath string

	// userAgent overrides Chrome's user agent when non-empty.
	userAgent string

	// proxy is passed to --proxy-server when non-empty.
	proxy string

	// width and height size the browser window.
	width  int
	height int

	// opTimeout bounds a single browser operation.
	opTimeout time.Duration

	// logger is used for browser lifecycle output.
	logger *slog.Logger
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithHeadless toggles headless mode. Default is true.
func WithHeadless(headless bool) LauncherOption {
	return func(l *Launcher) {
		l.headless = headless
	}
}

// WithExecPath sets the Chrome executable. Empty uses chromedp's lookup.
func WithExecPath(path string) LauncherOption {
	return func(l *Launcher) {
		l.execPath = path
	}
}

// WithUserAgent sets the browser user agent.
func WithUserAgent(ua string) LauncherOption {
	return func(l *Launcher) {
		l.userAgent = ua
	}
}

// WithProxy routes browser traffic through a proxy such as
// "socks5://127.0.0.1:9050".
func WithProxy(proxy string) LauncherOption {
	return func(l *Launcher) {
		l.proxy = proxy
	}
}

// WithWindowSize sets the browser viewport.
func WithWindowSize(width, height int) LauncherOption {
	return func(l *Launcher) {
		if width > 0 && height > 0 {
			l.width, l.height = width, height
		}
	}
}

// WithOpTimeout bounds every Session operation.
func WithOpTimeout(d time.Duration) LauncherOption {
	return func(l *Launcher) {
		if d > 0 {
			l.opTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LauncherOption {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// NewLauncher creates a Launcher.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		headless:  true,
		width:     DefaultWindowWidth,
		height:    DefaultWindowHeight,
		opTimeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// allocatorOptions returns the Chrome flags of one launch.
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		// Embedded players then live in the top target, so their requests
		// reach the session network log and their documents are scriptable.
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.WindowSize(l.width, l.height),
	)
	if l.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.userAgent))
	}
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}
	if l.proxy != "" {
		opts = append(opts, chromedp.ProxyServer(l.proxy))
	}
	return opts
}

// NewSession launches a browser bound to ctx. Cancelling ctx kills the
// browser; Close releases it earlier.
func (l *Launcher) NewSession(ctx context.Context) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			l.logger.Debug("chromedp", "detail", fmt.Sprintf(format, args...))
		}),
	)

	c := &Chrome{
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		opTimeout:   l.opTimeout,
		requests:    NewRequestLog(),
		logger:      l.logger,
	}
	chromedp.ListenTarget(taskCtx, c.onEvent)

	// The first Run starts the browser.
	if err := chromedp.Run(taskCtx, network.Enable(), runtime.Enable()); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrSessionFault, err)
	}

	return c, nil
}

// frameScope is one entered frame. A zero doc means the tab itself was
// navigated to the frame source.
type frameScope struct {
	// doc is the frame's contentDocument handle.
	doc runtime.RemoteObjectID
}

// Chrome is a Session backed by one chromedp browser.
type Chrome struct {
	// taskCtx is the chromedp tab context. Cancelling taskCancel and then
	// allocCancel shuts the browser down.
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc

	// opTimeout bounds a single operation.
	opTimeout time.Duration

	// requests collects network events of the current visit.
	requests *RequestLog

	logger *slog.Logger

	// mu guards frames and closed.
	mu sync.Mutex

	// frames is the stack of entered frames, innermost last.
	frames []frameScope
	closed bool
	once   sync.Once
}

var _ Session = (*Chrome)(nil)

// onEvent feeds network events into the request log.
func (c *Chrome) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request != nil {
			c.requests.Record(string(e.RequestID), e.Request.URL)
		}
	case *network.EventResponseReceived:
		c.requests.MarkResponse(string(e.RequestID))
	}
}

// run executes action on the tab, bounded by the operation timeout and by ctx.
func (c *Chrome) run(ctx context.Context, action chromedp.Action) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(c.taskCtx, c.opTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, action); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads url in the tab and resets the frame scope.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()

	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
	}
	return nil
}

// scopeObject returns the document object of the current scope.
// It must be called from inside a chromedp action.
func (c *Chrome) scopeObject(ctx context.Context) (runtime.RemoteObjectID, error) {
	c.mu.Lock()
	var doc runtime.RemoteObjectID
	if n := len(c.frames); n > 0 {
		doc = c.frames[n-1].doc
	}
	c.mu.Unlock()
	if doc != "" {
		return doc, nil
	}

	res, exc, err := runtime.Evaluate("document").Do(ctx)
	if err != nil {
		return "", err
	}
	if exc != nil {
		return "", fmt.Errorf("%w: %s", ErrScript, exceptionText(exc))
	}
	if res == nil || res.ObjectID == "" {
		return "", ErrNoFrame
	}
	return res.ObjectID, nil
}

// call runs a function declaration with `this` bound to target, or to the
// scope document when target is empty.
func (c *Chrome) call(ctx context.Context, target runtime.RemoteObjectID, decl string, byValue bool, args ...any) (*runtime.RemoteObject, error) {
	callArgs, err := callArguments(args)
	if err != nil {
		return nil, err
	}

	var out *runtime.RemoteObject
	err = c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id := target
		if id == "" {
			var err error
			if id, err = c.scopeObject(ctx); err != nil {
				return err
			}
		}
		res, exc, err := runtime.CallFunctionOn(decl).
			WithObjectID(id).
			WithArguments(callArgs).
			WithReturnByValue(byValue).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("%w: %s", ErrScript, exceptionText(exc))
		}
		out = res
		return nil
	}))
	return out, err
}

// callArguments encodes script arguments. Elements are passed by object
// ID, everything else as JSON values.
func callArguments(args []any) ([]*runtime.CallArgument, error) {
	out := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		if el, ok := a.(Element); ok {
			out = append(out, &runtime.CallArgument{ObjectID: runtime.RemoteObjectID(el.Ref())})
			continue
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("failed to encode script argument: %w", err)
		}
		out = append(out, &runtime.CallArgument{Value: easyjson.RawMessage(raw)})
	}
	return out, nil
}

// decodeValue unmarshals a by-value result into out. An undefined result
// leaves out untouched.
func decodeValue(obj *runtime.RemoteObject, out any) error {
	if obj == nil || len(obj.Value) == 0 {
		return nil
	}
	return json.Unmarshal(obj.Value, out)
}

func exceptionText(exc *runtime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		return exc.Exception.Description
	}
	return exc.Text
}

// FindElements returns the elements in scope matching loc.
func (c *Chrome) FindElements(ctx context.Context, loc Locator) ([]Element, error) {
	res, err := c.call(ctx, "", findScript, true, loc.Kind.String(), loc.Value)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	var count int
	if err := decodeValue(res, &count); err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}

	elements := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		obj, err := c.call(ctx, "", pickScript, false, i)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", loc, err)
		}
		if obj != nil && obj.ObjectID != "" {
			elements = append(elements, NewElement(string(obj.ObjectID)))
		}
	}
	return elements, nil
}

// IsVisible reports whether el is rendered and not hidden by style.
func (c *Chrome) IsVisible(ctx context.Context, el Element) (bool, error) {
	res, err := c.call(ctx, runtime.RemoteObjectID(el.Ref()), visibleScript, true)
	if err != nil {
		return false, err
	}
	var visible bool
	err = decodeValue(res, &visible)
	return visible, err
}

// Attribute returns the named attribute of el and whether it is present.
func (c *Chrome) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	res, err := c.call(ctx, runtime.RemoteObjectID(el.Ref()), attributeScript, true, name)
	if err != nil {
		return "", false, err
	}
	var attr struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := decodeValue(res, &attr); err != nil {
		return "", false, err
	}
	return attr.Value, attr.OK, nil
}

// Text returns the trimmed rendered text of el.
func (c *Chrome) Text(ctx context.Context, el Element) (string, error) {
	res, err := c.call(ctx, runtime.RemoteObjectID(el.Ref()), textScript, true)
	if err != nil {
		return "", err
	}
	var text string
	err = decodeValue(res, &text)
	return text, err
}

// RunScript runs script as a function body in the current scope.
func (c *Chrome) RunScript(ctx context.Context, script string, args ...any) (any, error) {
	res, err := c.call(ctx, "", "function() {\n"+script+"\n}", true, args...)
	if err != nil {
		return nil, err
	}
	var v any
	if err := decodeValue(res, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EnterFrame makes the document of the iframe el the current scope. When the
// frame document is not scriptable from the parent the tab is navigated to
// the frame source instead.
func (c *Chrome) EnterFrame(ctx context.Context, el Element) error {
	res, err := c.call(ctx, runtime.RemoteObjectID(el.Ref()), frameDocumentScript, false)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	if res != nil && res.ObjectID != "" && res.Subtype != runtime.SubtypeNull {
		c.mu.Lock()
		c.frames = append(c.frames, frameScope{doc: res.ObjectID})
		c.mu.Unlock()
		return nil
	}

	srcRes, err := c.call(ctx, runtime.RemoteObjectID(el.Ref()), frameSourceScript, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	var src string
	if err := decodeValue(srcRes, &src); err != nil || src == "" {
		return ErrNoFrame
	}

	c.logger.Debug("frame document not accessible, loading frame source", "src", src)
	if err := c.run(ctx, chromedp.Navigate(src)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, src, err)
	}
	c.mu.Lock()
	c.frames = append(c.frames, frameScope{})
	c.mu.Unlock()
	return nil
}

// ExitFrame returns to the enclosing scope. It is a no-op at the top level.
// A frame entered by navigation leaves the tab on the frame source.
func (c *Chrome) ExitFrame(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.frames); n > 0 {
		c.frames = c.frames[:n-1]
	}
	return nil
}

// Source returns the rendered HTML of the current scope.
func (c *Chrome) Source(ctx context.Context) (string, error) {
	res, err := c.call(ctx, "", sourceScript, true)
	if err != nil {
		return "", err
	}
	var html string
	err = decodeValue(res, &html)
	return html, err
}

// NetworkLog returns a snapshot of the requests seen since the last clear.
func (c *Chrome) NetworkLog() []NetworkRequest {
	return c.requests.Snapshot()
}

// ClearNetworkLog empties the request log.
func (c *Chrome) ClearNetworkLog() {
	c.requests.Clear()
}

// Close shuts the browser down. Only the first call has an effect.
func (c *Chrome) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		err = chromedp.Cancel(c.taskCtx)
		c.taskCancel()
		c.allocCancel()
	})
	return err
}
