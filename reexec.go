package toolpipe

import "github.com/axekit/toolpipe/sandbox"

// MaybeSandboxInit checks if the current process was re-executed as a
// sandbox helper and, if so, never returns control to the caller's main.
//
// Call this at the very beginning of main() before any other
// initialization:
//
//	func main() {
//	    if toolpipe.MaybeSandboxInit() {
//	        return
//	    }
//	    // ... rest of main
//	}
func MaybeSandboxInit() bool {
	return sandbox.MaybeInit()
}
