package browser

// Function declarations evaluated with runtime.CallFunctionOn. Matches of
// the last findScript call are parked on the scope document so pickScript
// can hand them out one object at a time.
const (
	findScript = `function(kind, value) {
	let found = [];
	if (kind === "tag") {
		found = Array.from(this.getElementsByTagName(value));
	} else if (kind === "css") {
		found = Array.from(this.querySelectorAll(value));
	} else {
		for (const el of this.getElementsByTagName("*")) {
			for (const n of el.childNodes) {
				if (n.nodeType === 3 && n.textContent.includes(value)) {
					found.push(el);
					break;
				}
			}
		}
	}
	this.__streamscoutMatches = found;
	return found.length;
}`

	pickScript = `function(i) {
	return (this.__streamscoutMatches || [])[i];
}`

	visibleScript = `function() {
	if (!this.isConnected) { return false; }
	const view = this.ownerDocument.defaultView;
	const style = view ? view.getComputedStyle(this) : null;
	if (style && (style.display === "none" || style.visibility === "hidden")) { return false; }
	return this.getClientRects().length > 0;
}`

	attributeScript = `function(name) {
	if (!this.hasAttribute || !this.hasAttribute(name)) { return {ok: false, value: ""}; }
	return {ok: true, value: this.getAttribute(name)};
}`

	textScript = `function() {
	return (this.innerText || this.textContent || "").trim();
}`

	frameDocumentScript = `function() {
	try { return this.contentDocument; } catch (e) { return null; }
}`

	frameSourceScript = `function() {
	return this.src || this.getAttribute("src") || "";
}`

	sourceScript = `function() {
	return this.documentElement ? this.documentElement.outerHTML : "";
}`
)
