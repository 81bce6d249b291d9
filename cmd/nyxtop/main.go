// Command nyxtop is a live dashboard over a kernel-state snapshot file,
// polling it on an interval and redrawing a table of live objects the way
// a process monitor redraws a process table.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/snapshot"
)

var (
	snapPath = flag.String("snapshot", "", "Path to a kernel-state snapshot file to watch")
	interval = flag.Duration("interval", 500*time.Millisecond, "Poll interval")
)

var (
	app      *tview.Application
	table    *tview.Table
	status   *tview.TextView
	mtx      sync.Mutex
	lastID   string
)

func main() {
	flag.Parse()
	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nyxtop -snapshot <file>")
		os.Exit(1)
	}

	app = tview.NewApplication()
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	table = tview.NewTable().SetBorders(false).SetFixed(1, 0)
	table.SetBorder(true).SetTitle("Objects")

	status = tview.NewTextView().SetChangedFunc(func() { app.Draw() })
	status.SetBorder(true).SetTitle("Status")

	grid := tview.NewGrid().
		SetRows(0, 3).
		SetColumns(0).
		AddItem(table, 0, 0, 1, 1, 0, 0, false).
		AddItem(status, 1, 0, 1, 1, 0, 0, false)

	go poll()

	if err := app.SetRoot(grid, true).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func poll() {
	for {
		refresh()
		time.Sleep(*interval)
	}
}

func refresh() {
	data, err := os.ReadFile(*snapPath)
	if err != nil {
		setStatus(fmt.Sprintf("read error: %v", err))
		return
	}
	snap, err := snapshot.Decode(data)
	if err != nil {
		setStatus(fmt.Sprintf("decode error: %v", err))
		return
	}

	mtx.Lock()
	defer mtx.Unlock()
	if lastID == snap.ID.String() {
		return
	}
	lastID = snap.ID.String()

	app.QueueUpdateDraw(func() {
		table.Clear()
		table.SetCell(0, 0, tview.NewTableCell("OBJECT").SetSelectable(false))
		table.SetCell(0, 1, tview.NewTableCell("GEN").SetSelectable(false))
		table.SetCell(0, 2, tview.NewTableCell("REFS").SetSelectable(false))

		keys := make([]string, 0, len(snap.Objects))
		for id := range snap.Objects {
			keys = append(keys, fmt.Sprintf("%v", id))
		}
		sort.Strings(keys)
		for i, key := range keys {
			row := i + 1
			var gen uint32
			var refs int
			for id, obj := range snap.Objects {
				if fmt.Sprintf("%v", id) == key {
					gen, refs = obj.Generation, obj.RefCount
					break
				}
			}
			table.SetCell(row, 0, tview.NewTableCell(key))
			table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", gen)))
			table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", refs)))
		}
		status.SetText(fmt.Sprintf("snapshot %s taken at %s (%d objects)", snap.ID, snap.TakenAt.Format("15:04:05"), len(snap.Objects)))
	})
}

func setStatus(msg string) {
	app.QueueUpdateDraw(func() {
		status.SetText(msg)
	})
}
