// Command ingestord drains configured source folders, extracts nested
// archives, quarantines duplicates and unrecognized files, and rebundles
// survivors into size-capped output archives on a schedule.
package main

import "github.com/arclake/ingestord/cmd/ingestord"

func main() {
	ingestord.Execute()
}
