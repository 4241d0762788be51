package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "streamscout"

	// DefaultBaseURL is the listing site scanned when no --base-url is given.
	DefaultBaseURL = "https://timstreams.site/"

	// DefaultPoolWidth is the number of channels resolved concurrently.
	// Every unit owns a full headless browser, so the width is kept small.
	DefaultPoolWidth = 3

	// DefaultWaitTimeout bounds every DOM presence wait during discovery.
	DefaultWaitTimeout = 45 * time.Second

	// DefaultPageSettle is the pause after a channel page navigation.
	DefaultPageSettle = 2 * time.Second

	// DefaultFrameSettle is the pause after entering an embedded player frame.
	DefaultFrameSettle = 1 * time.Second

	// DefaultGridSettle is the pause after opening the channel grid.
	DefaultGridSettle = 2 * time.Second

	// DefaultFilterSettle is the pause after applying a category filter.
	DefaultFilterSettle = 3 * time.Second

	// DefaultSniffBudget is how long the network log is polled for a manifest.
	DefaultSniffBudget = 10 * time.Second

	// DefaultSniffInterval is the network log polling interval.
	DefaultSniffInterval = 500 * time.Millisecond

	// DefaultChannelTimeout bounds the resolution of a single channel,
	// including browser launch and teardown.
	DefaultChannelTimeout = 2 * time.Minute

	// DefaultRunTimeout bounds the whole pipeline.
	DefaultRunTimeout = 30 * time.Minute

	// DefaultOpTimeout bounds a single browser operation.
	DefaultOpTimeout = 30 * time.Second

	// DefaultOutputFile is the playlist path written when --output is not given.
	DefaultOutputFile = "streamscout.m3u"

	// DefaultUserAgent is a desktop Chrome user agent. Players commonly refuse
	// to start for headless or unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// DefaultBlocklist holds substrings that mark a listing link as something other
// than a channel page. Matching is case-insensitive against URL and link text.
var DefaultBlocklist = []string{
	"discord",
	"telegram",
	"t.me/",
	"twitter.com",
	"//x.com",
	"facebook.com",
	"instagram.com",
	"reddit.com",
	"/login",
	"/register",
	"/signup",
	"/privacy",
	"/terms",
	"/dmca",
	"/contact",
	"/faq",
}

// Config holds all configuration options for a streamscout run.
// It is populated from CLI flags and the optional .streamscout file and
// passed through the application explicitly.
type Config struct {
	// BaseURL is the listing site entry point.
	BaseURL string

	// Category is the optional category filter (e.g. "Sports").
	// Empty means no filter is attempted.
	Category string

	// Blocklist holds substrings that exclude a discovered link.
	Blocklist []string

	// PoolWidth is the maximum number of concurrent resolution units.
	PoolWidth int

	// WaitTimeout bounds DOM presence waits during discovery.
	WaitTimeout time.Duration

	// PageSettle, FrameSettle, GridSettle and FilterSettle are fixed pauses
	// that let client-side rendering catch up.
	PageSettle   time.Duration
	FrameSettle  time.Duration
	GridSettle   time.Duration
	FilterSettle time.Duration

	// SniffBudget is the total time spent polling the network log per channel.
	SniffBudget time.Duration

	// SniffInterval is the network log polling interval.
	SniffInterval time.Duration

	// ChannelTimeout bounds one resolution unit.
	ChannelTimeout time.Duration

	// RunTimeout bounds the whole pipeline.
	RunTimeout time.Duration

	// OpTimeout bounds each individual browser operation.
	OpTimeout time.Duration

	// OutputFile is the playlist path.
	OutputFile string

	// GroupLabel is the playlist group-title. Empty derives one from the
	// site host and category.
	GroupLabel string

	// DiscoveryOrder writes playlist entries in discovery order instead of
	// resolution arrival order.
	DiscoveryOrder bool

	// Headless runs Chrome without a window.
	Headless bool

	// ChromePath overrides the Chrome executable lookup.
	ChromePath string

	// UserAgent is the browser user agent.
	UserAgent string

	// ProxyAddress routes browser traffic through a proxy ("socks5://host:port"
	// or "http://host:port"). Mutually exclusive with UseTor.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes browser traffic through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// DBDir is the directory holding the SQLite history database.
	DBDir string

	// SaveToDB records the run and its resolutions in the history database.
	SaveToDB bool

	// JSONSummary and MarkdownSummary select the run summary format.
	// They are mutually exclusive; neither means plain text.
	JSONSummary     bool
	MarkdownSummary bool

	// SummaryFile writes the run summary to a file instead of stdout.
	SummaryFile string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string

	// Site is the effective listing profile for BaseURL.
	Site SiteConfig
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		Blocklist:         append([]string(nil), DefaultBlocklist...),
		PoolWidth:         DefaultPoolWidth,
		WaitTimeout:       DefaultWaitTimeout,
		PageSettle:        DefaultPageSettle,
		FrameSettle:       DefaultFrameSettle,
		GridSettle:        DefaultGridSettle,
		FilterSettle:      DefaultFilterSettle,
		SniffBudget:       DefaultSniffBudget,
		SniffInterval:     DefaultSniffInterval,
		ChannelTimeout:    DefaultChannelTimeout,
		RunTimeout:        DefaultRunTimeout,
		OpTimeout:         DefaultOpTimeout,
		OutputFile:        DefaultOutputFile,
		Headless:          true,
		UserAgent:         DefaultUserAgent,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Site:              DefaultSiteConfig(),
	}
}

// XDGDataDir returns the XDG data directory for streamscout.
// On Linux: ~/.local/share/streamscout
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for streamscout.
// On Linux: ~/.config/streamscout
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Host returns the host of BaseURL without a leading "www.".
// It returns an empty string when BaseURL does not parse.
func (c *Config) Host() string {
	return hostOf(c.BaseURL)
}

// EffectiveGroupLabel returns the playlist group-title for this run.
// An explicit GroupLabel wins, then the site profile label, then a label
// derived from the host and category, e.g. "Timstreams Sports".
func (c *Config) EffectiveGroupLabel() string {
	if c.GroupLabel != "" {
		return c.GroupLabel
	}
	if c.Site.GroupLabel != "" {
		return c.Site.GroupLabel
	}
	return DeriveGroupLabel(c.Host(), c.Category)
}

// DeriveGroupLabel builds a title-cased label from the first host label and
// the category.
func DeriveGroupLabel(host, category string) string {
	caser := cases.Title(language.English)
	name := host
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	parts := make([]string, 0, 2)
	if name != "" {
		parts = append(parts, caser.String(name))
	}
	if category = strings.TrimSpace(category); category != "" {
		parts = append(parts, caser.String(category))
	}
	if len(parts) == 0 {
		return AppName
	}
	return strings.Join(parts, " ")
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}

	if c.PoolWidth < 1 {
		return ErrInvalidPoolWidth
	}

	if c.WaitTimeout <= 0 || c.ChannelTimeout <= 0 || c.RunTimeout <= 0 || c.OpTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.PageSettle < 0 || c.FrameSettle < 0 || c.GridSettle < 0 || c.FilterSettle < 0 {
		return ErrInvalidSettle
	}

	if c.SniffBudget <= 0 || c.SniffInterval <= 0 || c.SniffInterval > c.SniffBudget {
		return ErrInvalidSniffBudget
	}

	if c.ProxyAddress != "" && c.UseTor {
		return ErrConflictingEgress
	}

	if c.JSONSummary && c.MarkdownSummary {
		return ErrConflictingSummaryFormats
	}

	if c.OutputFile == "" {
		return ErrNoOutputFile
	}

	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
