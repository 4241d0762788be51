package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/model"
)

// DefaultPollInterval is the polling interval of DOM presence waits.
const DefaultPollInterval = 250 * time.Millisecond

// FilterMode records how the category filter was applied.
type FilterMode int

const (
	// FilterNone means no category was requested.
	FilterNone FilterMode = iota

	// FilterDropdown means a <select> option was chosen.
	FilterDropdown

	// FilterControl means a control labelled with the category was clicked.
	FilterControl

	// FilterCardText means candidates were kept by card text keyword.
	FilterCardText

	// FilterFailed means every strategy failed and the set is unfiltered.
	FilterFailed
)

// String returns the filter mode name.
func (m FilterMode) String() string {
	switch m {
	case FilterNone:
		return "none"
	case FilterDropdown:
		return "dropdown"
	case FilterControl:
		return "control"
	case FilterCardText:
		return "card-text"
	case FilterFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// domApplied reports whether the filter changed the page, which makes
// element visibility meaningful.
func (m FilterMode) domApplied() bool {
	return m == FilterDropdown || m == FilterControl
}

// Result is the outcome of Discover.
type Result struct {
	// Channels are the discovered channels in discovery order, each URL once.
	Channels []model.Channel

	// Filter records how the category filter was applied.
	Filter FilterMode
}

// Page scripts. Each receives the element under inspection as arguments[0].
const (
	selectOptionScript = `const sel = arguments[0];
const want = String(arguments[1]).toLowerCase();
for (const o of sel.options || []) {
	if ((o.text || "").toLowerCase().includes(want)) {
		sel.value = o.value;
		sel.dispatchEvent(new Event("input", {bubbles: true}));
		sel.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	}
}
return false;`

	headingScript = `const p = arguments[0].parentElement;
const h = p ? p.querySelector(arguments[1]) : null;
return h ? (h.innerText || h.textContent || "").trim() : "";`

	cardTextScript = `const p = arguments[0].parentElement;
return p ? (p.innerText || p.textContent || "").trim() : "";`
)

// Discoverer extracts channels from a listing site.
type Discoverer struct {
	// base is the listing page; links are resolved against it.
	base *url.URL

	// site is the profile describing the listing markup.
	site config.SiteConfig

	// category is the requested filter, empty for every channel.
	category string

	// blocklist rejects navigation and promo links.
	blocklist Blocklist

	// waitTimeout bounds each element wait; pollInterval paces it.
	waitTimeout  time.Duration
	pollInterval time.Duration

	// gridSettle and filterSettle are pauses after opening the grid and
	// applying the filter.
	gridSettle   time.Duration
	filterSettle time.Duration

	// logger is used for debug and warning output.
	logger *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithSite sets the listing profile.
func WithSite(site config.SiteConfig) Option {
	return func(d *Discoverer) {
		d.site = site
	}
}

// WithCategory sets the category filter. Empty disables filtering.
func WithCategory(category string) Option {
	return func(d *Discoverer) {
		d.category = strings.TrimSpace(category)
	}
}

// WithBlocklist sets the link blocklist.
func WithBlocklist(entries []string) Option {
	return func(d *Discoverer) {
		d.blocklist = NewBlocklist(entries)
	}
}

// WithWaitTimeout bounds DOM presence waits.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(d *Discoverer) {
		if timeout > 0 {
			d.waitTimeout = timeout
		}
	}
}

// WithPollInterval sets the DOM presence polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Discoverer) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithSettle sets the pauses after opening the grid and after filtering.
func WithSettle(grid, filter time.Duration) Option {
	return func(d *Discoverer) {
		d.gridSettle = grid
		d.filterSettle = filter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

// New creates a Discoverer for the listing site at baseURL.
func New(baseURL string, opts ...Option) (*Discoverer, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", ErrNavigationFailure, baseURL)
	}

	d := &Discoverer{
		base:         base,
		site:         config.DefaultSiteConfig(),
		blocklist:    NewBlocklist(config.DefaultBlocklist),
		waitTimeout:  config.DefaultWaitTimeout,
		pollInterval: DefaultPollInterval,
		gridSettle:   config.DefaultGridSettle,
		filterSettle: config.DefaultFilterSettle,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// Discover runs discovery on sess. The caller owns sess.
func (d *Discoverer) Discover(ctx context.Context, sess browser.Session) (*Result, error) {
	d.logger.Info("opening listing page", "url", d.base.String())
	if err := sess.Navigate(ctx, d.base.String()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigationFailure, err)
	}

	if err := d.openGrid(ctx, sess); err != nil {
		return nil, err
	}

	// A filter that cannot be applied degrades to card text matching.
	mode := d.applyFilter(ctx, sess)

	candidates, err := d.enumerate(ctx, sess, mode)
	if err != nil {
		return nil, err
	}

	// No card matched the keyword: keep every channel.
	if mode == FilterCardText {
		filtered := d.keepCategory(candidates)
		if len(filtered) == 0 {
			d.logger.Warn("proceeding unfiltered",
				"category", d.category,
				"error", ErrFilterApplication,
			)
			mode = FilterFailed
		} else {
			candidates = filtered
		}
	}

	// First occurrence of each URL wins.
	channels := dedupe(candidates)
	d.logger.Info("discovery complete",
		"channels", len(channels),
		"filter", mode.String(),
	)
	if len(channels) == 0 {
		return nil, ErrEmptyResult
	}
	return &Result{Channels: channels, Filter: mode}, nil
}

// openGrid clicks the grid control and waits for watch affordances.
func (d *Discoverer) openGrid(ctx context.Context, sess browser.Session) error {
	if d.site.SkipGridControl || d.site.GridControlText == "" {
		return nil
	}

	controls, err := d.waitFor(ctx, sess, browser.TextContains(d.site.GridControlText))
	if err != nil {
		return fmt.Errorf("%w: grid control %q: %w", ErrNavigationFailure, d.site.GridControlText, err)
	}
	if err := browser.Click(ctx, sess, controls[0]); err != nil {
		return fmt.Errorf("%w: grid control click: %w", ErrNavigationFailure, err)
	}

	if _, err := d.waitFor(ctx, sess, browser.CSS(d.site.WatchSelector)); err != nil {
		return fmt.Errorf("%w: channel grid %q: %w", ErrNavigationFailure, d.site.WatchSelector, err)
	}
	return sleep(ctx, d.gridSettle)
}

// errNotPresent is returned by waitFor when loc never matched.
var errNotPresent = errors.New("element not present")

// waitFor polls until loc matches or the wait timeout elapses.
func (d *Discoverer) waitFor(ctx context.Context, sess browser.Session, loc browser.Locator) ([]browser.Element, error) {
	deadline := time.Now().Add(d.waitTimeout)
	for {
		els, err := sess.FindElements(ctx, loc)
		if err == nil && len(els) > 0 {
			return els, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w within %v: %s", errNotPresent, d.waitTimeout, loc)
		}
		if err := sleep(ctx, d.pollInterval); err != nil {
			return nil, err
		}
	}
}

// applyFilter tries the DOM filter strategies. It returns FilterCardText
// when both fail; enumeration then decides whether keyword matching works.
func (d *Discoverer) applyFilter(ctx context.Context, sess browser.Session) FilterMode {
	if d.category == "" {
		return FilterNone
	}

	if d.selectOption(ctx, sess) && d.verifyFilter(ctx, sess) {
		d.logger.Info("category filter applied", "category", d.category, "via", FilterDropdown.String())
		return FilterDropdown
	}
	if d.clickControl(ctx, sess) && d.verifyFilter(ctx, sess) {
		d.logger.Info("category filter applied", "category", d.category, "via", FilterControl.String())
		return FilterControl
	}

	d.logger.Debug("no filter control found, matching card text", "category", d.category)
	return FilterCardText
}

// selectOption picks the category in the first dropdown that offers it.
func (d *Discoverer) selectOption(ctx context.Context, sess browser.Session) bool {
	selects, err := sess.FindElements(ctx, browser.Tag("select"))
	if err != nil {
		return false
	}
	for _, sel := range selects {
		v, err := sess.RunScript(ctx, selectOptionScript, sel, d.category)
		if err != nil {
			d.logger.Debug("dropdown selection failed", "error", err)
			continue
		}
		if ok, _ := v.(bool); ok {
			return true
		}
	}
	return false
}

// clickControl clicks the first visible element labelled exactly with the
// category. Card titles merely containing the word are left alone.
func (d *Discoverer) clickControl(ctx context.Context, sess browser.Session) bool {
	els, err := sess.FindElements(ctx, browser.TextContains(d.category))
	if err != nil {
		return false
	}
	for _, el := range els {
		text, err := sess.Text(ctx, el)
		if err != nil || !strings.EqualFold(strings.TrimSpace(text), d.category) {
			continue
		}
		if visible, err := sess.IsVisible(ctx, el); err != nil || !visible {
			continue
		}
		if err := browser.Click(ctx, sess, el); err != nil {
			d.logger.Debug("filter control click failed", "error", err)
			continue
		}
		return true
	}
	return false
}

// verifyFilter waits for the page to settle and checks that at least one
// watch affordance is still visible.
func (d *Discoverer) verifyFilter(ctx context.Context, sess browser.Session) bool {
	if err := sleep(ctx, d.filterSettle); err != nil {
		return false
	}
	els, err := sess.FindElements(ctx, browser.CSS(d.site.WatchSelector))
	if err != nil {
		return false
	}
	for _, el := range els {
		if visible, err := sess.IsVisible(ctx, el); err == nil && visible {
			return true
		}
	}
	return false
}

// candidate is a channel before deduplication.
type candidate struct {
	name string
	url  string

	// cardText is the surrounding card text, matched by the text filter.
	cardText string
}

// enumerate collects watch affordances first, then hyperlinks.
func (d *Discoverer) enumerate(ctx context.Context, sess browser.Session, mode FilterMode) ([]candidate, error) {
	visibleOnly := mode.domApplied()
	out := make([]candidate, 0)

	watch, err := sess.FindElements(ctx, browser.CSS(d.site.WatchSelector))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigationFailure, err)
	}
	for _, el := range watch {
		c, ok := d.watchCandidate(ctx, sess, el, visibleOnly)
		if ok {
			out = append(out, c)
		}
	}

	anchors, err := sess.FindElements(ctx, browser.Tag("a"))
	if err != nil {
		d.logger.Debug("link enumeration failed", "error", err)
		return out, nil
	}
	for _, el := range anchors {
		c, ok := d.linkCandidate(ctx, sess, el, visibleOnly)
		if ok {
			out = append(out, c)
		}
	}

	d.logger.Debug("candidates enumerated",
		"watch", len(watch),
		"links", len(anchors),
		"kept", len(out),
	)
	return out, nil
}

// watchCandidate turns a watch button into a candidate. The target comes
// from the configured action attribute, falling back to href.
func (d *Discoverer) watchCandidate(ctx context.Context, sess browser.Session, el browser.Element, visibleOnly bool) (candidate, bool) {
	if visibleOnly && !d.visible(ctx, sess, el) {
		return candidate{}, false
	}

	target := ""
	if action, ok, err := sess.Attribute(ctx, el, d.site.ActionAttribute); err == nil && ok {
		target = actionTarget(action)
	}
	if target == "" {
		if href, ok, err := sess.Attribute(ctx, el, "href"); err == nil && ok {
			target = href
		}
	}
	link, ok := resolveURL(d.base, target)
	if !ok {
		return candidate{}, false
	}

	heading := ""
	if v, err := sess.RunScript(ctx, headingScript, el, d.site.HeadingSelector); err == nil {
		heading, _ = v.(string)
	}
	text, _ := sess.Text(ctx, el)
	if d.blocklist.Blocked(link, heading+" "+text) {
		d.logger.Debug("blocklisted", "url", link)
		return candidate{}, false
	}

	// Heading, then the element's own label, then the URL path.
	name := cleanName(heading, d.site.NamePrefixes)
	if name == "" {
		name = cleanName(text, d.site.NamePrefixes)
	}
	if name == "" {
		name = nameFromURL(link)
	}

	card := ""
	if d.category != "" {
		if v, err := sess.RunScript(ctx, cardTextScript, el); err == nil {
			card, _ = v.(string)
		}
	}
	return candidate{name: name, url: link, cardText: card + " " + heading}, true
}

// linkCandidate turns an anchor into a candidate when it points at another
// page on the listing host.
func (d *Discoverer) linkCandidate(ctx context.Context, sess browser.Session, el browser.Element, visibleOnly bool) (candidate, bool) {
	href, ok, err := sess.Attribute(ctx, el, "href")
	if err != nil || !ok {
		return candidate{}, false
	}
	link, ok := resolveURL(d.base, href)
	if !ok || !sameHost(d.base, link) || isBase(d.base, link) {
		return candidate{}, false
	}

	text, _ := sess.Text(ctx, el)
	if d.blocklist.Blocked(link, text) {
		d.logger.Debug("blocklisted", "url", link)
		return candidate{}, false
	}
	if visibleOnly && !d.visible(ctx, sess, el) {
		return candidate{}, false
	}

	name := cleanName(text, d.site.NamePrefixes)
	if name == "" {
		name = nameFromURL(link)
	}
	if name == "" {
		return candidate{}, false
	}
	return candidate{name: name, url: link, cardText: text}, true
}

func (d *Discoverer) visible(ctx context.Context, sess browser.Session, el browser.Element) bool {
	v, err := sess.IsVisible(ctx, el)
	return err == nil && v
}

// keepCategory returns the candidates whose card text mentions the category.
func (d *Discoverer) keepCategory(candidates []candidate) []candidate {
	want := strings.ToLower(d.category)
	out := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.cardText+" "+c.name), want) {
			out = append(out, c)
		}
	}
	return out
}

// dedupe keeps the first candidate per URL and assigns discovery indexes.
func dedupe(candidates []candidate) []model.Channel {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]model.Channel, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.url]; dup {
			continue
		}
		seen[c.url] = struct{}{}
		out = append(out, model.Channel{Name: c.name, URL: c.url, Index: len(out)})
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
