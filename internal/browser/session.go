package browser

import (
	"context"
	"fmt"
)

// LocatorKind selects how a Locator matches elements.
type LocatorKind int

const (
	// ByTag matches elements by tag name.
	ByTag LocatorKind = iota

	// ByCSS matches elements by CSS selector.
	ByCSS

	// ByText matches elements whose own text contains the value.
	ByText
)

// String returns the locator kind name.
func (k LocatorKind) String() string {
	switch k {
	case ByTag:
		return "tag"
	case ByCSS:
		return "css"
	case ByText:
		return "text"
	default:
		return "unknown"
	}
}

// Locator identifies a set of elements in the current scope.
type Locator struct {
	// Kind selects how Value is matched.
	Kind LocatorKind

	// Value is the tag name, CSS selector or text to match.
	Value string
}

// Tag returns a Locator matching elements named name.
func Tag(name string) Locator { return Locator{Kind: ByTag, Value: name} }

// CSS returns a Locator matching a CSS selector.
func CSS(selector string) Locator { return Locator{Kind: ByCSS, Value: selector} }

// TextContains returns a Locator matching elements whose own text contains text.
func TextContains(text string) Locator { return Locator{Kind: ByText, Value: text} }

// String returns a readable form such as css(.btn-watch).
func (l Locator) String() string {
	return fmt.Sprintf("%s(%s)", l.Kind, l.Value)
}

// Element is an opaque handle to an element inside a Session.
// It is only meaningful to the Session that returned it.
type Element struct {
	ref string
}

// NewElement wraps an implementation-specific reference.
func NewElement(ref string) Element { return Element{ref: ref} }

// Ref returns the implementation-specific reference.
func (e Element) Ref() string { return e.ref }

// IsZero reports whether e is the zero handle.
func (e Element) IsZero() bool { return e.ref == "" }

// NetworkRequest is one entry of a session network log.
type NetworkRequest struct {
	// URL is the requested URL.
	URL string `json:"url"`

	// HasResponse is set once a response was received.
	HasResponse bool `json:"has_response"`
}

// Session is one isolated browser instance.
//
// Scripts passed to RunScript are function bodies. Positional arguments are
// available as arguments[i], `this` is the document of the current scope and
// Element arguments arrive as DOM nodes. The returned value is JSON-decoded.
type Session interface {
	Navigate(ctx context.Context, url string) error
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	Text(ctx context.Context, el Element) (string, error)
	RunScript(ctx context.Context, script string, args ...any) (any, error)
	EnterFrame(ctx context.Context, el Element) error
	ExitFrame(ctx context.Context) error
	Source(ctx context.Context) (string, error)
	NetworkLog() []NetworkRequest
	ClearNetworkLog()
	Close() error
}

// Factory creates Sessions.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

// NewSession calls f(ctx).
func (f FactoryFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}

// ClickScript clicks arguments[0] after scrolling it into view. A script
// click reaches elements that overlays would intercept.
const ClickScript = `const el = arguments[0];
if (el.scrollIntoView) { el.scrollIntoView({block: "center"}); }
el.click();
return true;`

// Click clicks el through ClickScript.
func Click(ctx context.Context, s Session, el Element) error {
	_, err := s.RunScript(ctx, ClickScript, el)
	return err
}
