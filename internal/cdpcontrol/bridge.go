package cdpcontrol

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/executor"
)

const bridgeVersion = "1"

// jsBridge installs window.__threadsBridge, the in-page receiver for relay
// commands. It remembers the editor and schedule nodes it last resolved so
// follow-up calls act on the same elements.
const jsBridge = `
var prev = window.__threadsBridge;
if (prev && prev.version === ` + `"` + bridgeVersion + `"` + `) {
  return JSON.stringify({ok:true,data:{installed:false}});
}
var editor = null;
var schedule = null;
function textOf(el) { return (el.innerText || el.textContent || "").trim(); }
function firstWithText(tags, labels) {
  var nodes = document.querySelectorAll(tags);
  for (var i = 0; i < nodes.length; i++) {
    var tx = textOf(nodes[i]);
    if (!tx) continue;
    for (var j = 0; j < labels.length; j++) {
      if (tx.indexOf(labels[j]) !== -1) return nodes[i];
    }
  }
  return null;
}
// composeScope is the dialog holding the resolved editor, so page chrome
// such as the sidebar never matches a schedule label.
function composeScope() {
  if (!editor || !editor.isConnected) return null;
  return editor.closest("[role=dialog]") || editor.closest("form");
}
function requireEditor() {
  if (!editor || !editor.isConnected) throw new Error("editor not resolved");
  return editor;
}
window.__threadsBridge = {
  version: "` + bridgeVersion + `",
  ping: function() { return true; },
  findEditor: function(selectors) {
    for (var i = 0; i < selectors.length; i++) {
      var el = document.querySelector(selectors[i]);
      if (el) { editor = el; return true; }
    }
    editor = null;
    return false;
  },
  clickPlaceholder: function(labels) {
    var el = firstWithText("div, span", labels);
    if (!el) return false;
    el.click();
    return true;
  },
  focus: function() { requireEditor().focus(); return true; },
  insertText: function(text) {
    requireEditor().focus();
    return document.execCommand("insertText", false, text) === true;
  },
  replaceText: function(text) {
    var el = requireEditor();
    el.innerText = text;
    el.dispatchEvent(new Event("input", {bubbles: true}));
    return true;
  },
  findSchedule: function(labels) {
    var scope = composeScope();
    schedule = null;
    if (!scope) return false;
    var nodes = scope.querySelectorAll("[aria-label]");
    for (var i = 0; i < nodes.length; i++) {
      var name = nodes[i].getAttribute("aria-label") || "";
      for (var j = 0; j < labels.length; j++) {
        if (name.indexOf(labels[j]) !== -1) { schedule = nodes[i]; return true; }
      }
    }
    schedule = null;
    return false;
  },
  clickSchedule: function() {
    if (!schedule || !schedule.isConnected) throw new Error("schedule control not resolved");
    var target = schedule.closest("[role=button], button") || schedule;
    target.click();
    return true;
  },
  showOverlay: function(variant, message, ttlMs) {
    var old = document.getElementById("__threads_overlay");
    if (old) old.remove();
    var box = document.createElement("div");
    box.id = "__threads_overlay";
    box.setAttribute("role", variant === "error" ? "alert" : "status");
    box.style.cssText = "position:fixed;top:16px;right:16px;z-index:2147483647;max-width:360px;" +
      "padding:12px 36px 12px 16px;border-radius:8px;font:14px/1.4 sans-serif;color:#fff;" +
      "box-shadow:0 4px 12px rgba(0,0,0,.25);background:" + (variant === "error" ? "#ed4956" : "#0095f6");
    box.textContent = message;
    var close = document.createElement("button");
    close.textContent = "×";
    close.setAttribute("aria-label", "close");
    close.style.cssText = "position:absolute;top:6px;right:8px;border:0;background:none;color:#fff;font-size:18px;cursor:pointer";
    close.onclick = function() { box.remove(); };
    box.appendChild(close);
    document.body.appendChild(box);
    if (ttlMs > 0) setTimeout(function() { box.remove(); }, ttlMs);
    return true;
  }
};
return JSON.stringify({ok:true,data:{installed:true}});
`

func jsInstallBridge() string { return wrapJSEval(jsBridge) }

func jsVisibility() string {
	return wrapJSEval(`return JSON.stringify({ok:true,data:{visible:document.visibilityState === "visible"}});`)
}

// jsBridgeCall invokes method on the installed bridge. A missing bridge is
// reported as TRANSPORT so the caller can install it and retry.
func jsBridgeCall(method string, args ...any) string {
	if args == nil {
		args = []any{}
	}
	return wrapJSEvalAsync(`var b = window.__threadsBridge;
if (!b || typeof b[` + jsString(method) + `] !== "function") {
  return JSON.stringify({ok:false,error_code:"` + apperr.CodeTransport + `",error_message:"no executor listening in tab"});
}
var r = await b[` + jsString(method) + `].apply(null, ` + jsJSON(args) + `);
return JSON.stringify({ok:true,data:r});`)
}

// InstallBridge injects the relay receiver into tabID. Installing over an
// existing bridge of the same version is a no-op.
func (c *Client) InstallBridge(ctx context.Context, tabID string) error {
	var out struct {
		Installed bool `json:"installed"`
	}
	if err := c.evalOnTab(ctx, tabID, jsInstallBridge(), &out); err != nil {
		return err
	}
	slog.Info("cdpcontrol bridge install", "tab_id", tabID, "installed", out.Installed)
	return nil
}

// PingBridge reports whether a bridge is listening in tabID.
func (c *Client) PingBridge(ctx context.Context, tabID string) (bool, error) {
	var ok bool
	err := c.evalOnTab(ctx, tabID, jsBridgeCall("ping"), &ok)
	if apperr.Is(err, apperr.CodeTransport) {
		return false, nil
	}
	return ok, err
}

func (c *Client) bridgeBool(ctx context.Context, tabID, method string, args ...any) (bool, error) {
	var ok bool
	if err := c.evalOnTab(ctx, tabID, jsBridgeCall(method, args...), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Surface returns the executor surface of tabID.
func (c *Client) Surface(tabID string) *TabSurface {
	return &TabSurface{client: c, tabID: strings.TrimSpace(tabID)}
}

// TabSurface adapts a bridged tab to executor.Surface.
type TabSurface struct {
	client *Client
	tabID  string
}

var _ executor.Surface = (*TabSurface)(nil)

func (s *TabSurface) FindEditor(ctx context.Context, selectors []string) (bool, error) {
	return s.client.bridgeBool(ctx, s.tabID, "findEditor", selectors)
}

func (s *TabSurface) ClickPlaceholder(ctx context.Context, labels []string) (bool, error) {
	return s.client.bridgeBool(ctx, s.tabID, "clickPlaceholder", labels)
}

func (s *TabSurface) FocusEditor(ctx context.Context) error {
	_, err := s.client.bridgeBool(ctx, s.tabID, "focus")
	return err
}

func (s *TabSurface) InsertText(ctx context.Context, text string) (bool, error) {
	return s.client.bridgeBool(ctx, s.tabID, "insertText", text)
}

func (s *TabSurface) ReplaceText(ctx context.Context, text string) error {
	_, err := s.client.bridgeBool(ctx, s.tabID, "replaceText", text)
	return err
}

func (s *TabSurface) FindSchedule(ctx context.Context, labels []string) (bool, error) {
	return s.client.bridgeBool(ctx, s.tabID, "findSchedule", labels)
}

func (s *TabSurface) ClickSchedule(ctx context.Context) error {
	_, err := s.client.bridgeBool(ctx, s.tabID, "clickSchedule")
	return err
}

func (s *TabSurface) ShowOverlay(ctx context.Context, o executor.Overlay) error {
	_, err := s.client.bridgeBool(ctx, s.tabID, "showOverlay", string(o.Variant), o.Message, o.TTL.Milliseconds())
	return err
}
