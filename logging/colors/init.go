package colors

// init probes the console for ANSI support. Unix terminals are assumed to support it, Windows needs a console call.
func init() {
	EnableColor()
}
