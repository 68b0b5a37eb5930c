package system

import (
	"golang.design/x/hotkey"

	obshotkey "github.com/mattjoyce/obskey/internal/hotkey"
)

func modifiers(m obshotkey.Modifier) []hotkey.Modifier {
	var out []hotkey.Modifier
	if m.Has(obshotkey.ModCtrl) {
		out = append(out, hotkey.ModCtrl)
	}
	if m.Has(obshotkey.ModShift) {
		out = append(out, hotkey.ModShift)
	}
	if m.Has(obshotkey.ModAlt) {
		out = append(out, hotkey.ModAlt)
	}
	if m.Has(obshotkey.ModSuper) {
		out = append(out, hotkey.ModWin)
	}
	return out
}
