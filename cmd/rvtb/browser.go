package main

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
)

// openMonitorInBrowser best-effort opens the status monitor's URL; a
// headless CI run has no display to open it on, so a failure here is
// reported but never fatal to the testbench run itself.
func openMonitorInBrowser(addr string) {
	url := "http://" + addr
	if err := browser.OpenURL(url); err != nil {
		fmt.Fprintf(os.Stderr, "rvtb: could not open browser for %s: %v\n", url, err)
	}
}
