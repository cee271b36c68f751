// File: internal/backend/keymap_test.go
package backend

import (
	"testing"

	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
)

func TestKeyTranslationCommonSubset(t *testing.T) {
	pairs := []struct {
		keysym  string
		browser string
	}{
		{"Return", kb.Enter},
		{"Tab", kb.Tab},
		{"Escape", kb.Escape},
		{"BackSpace", kb.Backspace},
		{"Delete", kb.Delete},
		{"Up", kb.ArrowUp},
		{"Down", kb.ArrowDown},
		{"Left", kb.ArrowLeft},
		{"Right", kb.ArrowRight},
		{"Home", kb.Home},
		{"End", kb.End},
		{"Page_Up", kb.PageUp},
		{"Page_Down", kb.PageDown},
	}
	for _, p := range pairs {
		assert.Equal(t, p.browser, ToBrowserKey(p.keysym), "keysym %s", p.keysym)
	}

	// The reverse direction restores the keysym for every named browser key.
	for browser, keysym := range browserToKeysym {
		assert.Equal(t, keysym, ToXKeysym(browser))
	}
}

func TestKeyTranslationPassThrough(t *testing.T) {
	// Single characters and unmapped names travel unchanged in both directions.
	for _, symbol := range []string{"a", "Z", "7", "F5", "comma"} {
		assert.Equal(t, symbol, ToBrowserKey(symbol))
		assert.Equal(t, symbol, ToXKeysym(symbol))
	}
}
