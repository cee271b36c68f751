// File: internal/backend/keymap.go
package backend

import "github.com/chromedp/chromedp/kb"

// The two adapters use different key vocabularies: the container adapter
// speaks X keysyms (xdotool), the process adapter speaks the browser
// automation vocabulary (chromedp/kb). The tables below map the common
// subset; unmapped symbols pass through unchanged.

var keysymToBrowser = map[string]string{
	"Return":    kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"BackSpace": kb.Backspace,
	"Delete":    kb.Delete,
	"Up":        kb.ArrowUp,
	"Down":      kb.ArrowDown,
	"Left":      kb.ArrowLeft,
	"Right":     kb.ArrowRight,
	"Home":      kb.Home,
	"End":       kb.End,
	"Page_Up":   kb.PageUp,
	"Page_Down": kb.PageDown,
	"space":     " ",
}

var browserToKeysym = map[string]string{
	"Enter":      "Return",
	"Tab":        "Tab",
	"Escape":     "Escape",
	"Backspace":  "BackSpace",
	"Delete":     "Delete",
	"ArrowUp":    "Up",
	"ArrowDown":  "Down",
	"ArrowLeft":  "Left",
	"ArrowRight": "Right",
	"Home":       "Home",
	"End":        "End",
	"PageUp":     "Page_Up",
	"PageDown":   "Page_Down",
}

// ToBrowserKey translates an X keysym into the browser automation vocabulary.
func ToBrowserKey(symbol string) string {
	if mapped, ok := keysymToBrowser[symbol]; ok {
		return mapped
	}
	return symbol
}

// ToXKeysym translates a browser automation key name into an X keysym.
func ToXKeysym(symbol string) string {
	if mapped, ok := browserToKeysym[symbol]; ok {
		return mapped
	}
	return symbol
}
