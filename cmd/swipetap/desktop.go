package main

import (
	"swipetap/internal/router"
	"swipetap/internal/touch"
)

// desktop is the window server of the headless runner: every window id
// resolves to one full-screen window whose single element hosts the
// recognizers.
type desktop struct {
	content *element
}

type element struct {
	recognizers []any
}

func (e *element) GestureRecognizers() []any { return e.recognizers }

type fullScreen struct {
	content *element
}

func (w fullScreen) HitTest(touch.Point) (router.Element, bool) {
	return w.content, true
}

func newDesktop(recognizers ...any) *desktop {
	return &desktop{content: &element{recognizers: recognizers}}
}

func (d *desktop) Window(int64) (router.Window, bool) {
	return fullScreen{content: d.content}, true
}
