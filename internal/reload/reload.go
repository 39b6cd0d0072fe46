// Package reload carries "reload now" signals from the build side to the
// connected browsers.
package reload

// Kind is what connected clients should do.
type Kind int

const (
	None Kind = iota
	// CSS asks clients to swap their stylesheets without a page reload.
	CSS
	// Page asks for a full reload.
	Page
)

func (k Kind) String() string {
	switch k {
	case CSS:
		return "css"
	case Page:
		return "reload"
	}
	return "none"
}

// Max returns the strongest of two requests.
func Max(a, b Kind) Kind {
	if a > b {
		return a
	}
	return b
}

// Reloader receives reload requests.
type Reloader interface {
	Reload(Kind)
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(Kind)

func (f ReloaderFunc) Reload(k Kind) { f(k) }
