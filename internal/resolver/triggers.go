package resolver

import (
	"context"
	"strings"

	"github.com/nao1215/streamscout/internal/browser"
)

// trigger is one attempt at starting playback.
type trigger interface {
	Name() string
	Attempt(ctx context.Context, sess browser.Session) (bool, error)
}

// defaultTriggers returns the playback triggers in the order they run.
func defaultTriggers() []trigger {
	return []trigger{
		mediaElementTrigger{},
		playButtonTrigger{selectors: playButtonSelectors},
		playerGlobalTrigger{},
	}
}

const playMediaScript = `const m = arguments[0];
if (m.scrollIntoView) { m.scrollIntoView({block: "center"}); }
m.muted = true;
try {
	const p = m.play();
	if (p && p.catch) { p.catch(() => {}); }
} catch (e) {}
if (m.click) { m.click(); }
return true;`

// mediaElementTrigger plays the first <video> or <audio> in scope.
type mediaElementTrigger struct{}

func (mediaElementTrigger) Name() string { return "media-element" }

// Attempt calls play() on the first media element in scope.
func (mediaElementTrigger) Attempt(ctx context.Context, sess browser.Session) (bool, error) {
	els, err := sess.FindElements(ctx, browser.CSS("video, audio"))
	if err != nil || len(els) == 0 {
		return false, err
	}
	v, err := sess.RunScript(ctx, playMediaScript, els[0])
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

// playButtonSelectors match the overlay buttons of common players.
var playButtonSelectors = []string{
	".vjs-big-play-button",
	".jw-display-icon-container",
	".plyr__control--overlaid",
	`[aria-label="Play"]`,
	".play-button",
	"button.play",
}

// playButtonTrigger clicks the first overlay play button in scope.
type playButtonTrigger struct {
	selectors []string
}

func (playButtonTrigger) Name() string { return "big-play-button" }

// Attempt clicks the first element matching any of t.selectors.
func (t playButtonTrigger) Attempt(ctx context.Context, sess browser.Session) (bool, error) {
	els, err := sess.FindElements(ctx, browser.CSS(strings.Join(t.selectors, ", ")))
	if err != nil || len(els) == 0 {
		return false, err
	}
	if err := browser.Click(ctx, sess, els[0]); err != nil {
		return false, err
	}
	return true, nil
}

// playerGlobalScript reads player globals from the window owning the scope
// document. Inside an entered frame `this` is the frame document while the
// function itself is compiled in the parent context, so bare globals would
// name the parent's player.
const playerGlobalScript = `const w = (this && this.defaultView) || window;
const tries = [
	["jwplayer", () => {
		const p = typeof w.jwplayer === "function" ? w.jwplayer() : null;
		if (p && p.play) { if (p.setMute) { p.setMute(true); } p.play(); return true; }
	}],
	["videojs", () => {
		const vjs = w.videojs;
		const ps = typeof vjs === "function" && vjs.players ? vjs.players : null;
		for (const k in (ps || {})) {
			const p = ps[k];
			if (p && p.play) { if (p.muted) { p.muted(true); } p.play(); return true; }
		}
	}],
	["clappr", () => {
		const p = w.clapprPlayer || w.player;
		if (p && p.play) { if (p.mute) { p.mute(); } p.play(); return true; }
	}],
	["hls", () => {
		const h = w.hls;
		if (h && h.startLoad) { h.startLoad(); return true; }
	}],
];
for (const [name, fn] of tries) {
	try { if (fn()) { return name; } } catch (e) {}
}
return "";`

// playerGlobalTrigger starts playback through a player library global.
type playerGlobalTrigger struct{}

func (playerGlobalTrigger) Name() string { return "player-global" }

// Attempt succeeds when the script started a known player.
func (playerGlobalTrigger) Attempt(ctx context.Context, sess browser.Session) (bool, error) {
	v, err := sess.RunScript(ctx, playerGlobalScript)
	if err != nil {
		return false, err
	}
	name, _ := v.(string)
	return name != "", nil
}
