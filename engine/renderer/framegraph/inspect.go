package framegraph

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
)

// UI is the small surface the graph inspector draws with.
type UI interface {
	Header(title string)
	Text(label string, value any)
}

// Inspect walks the graph in execution order and draws every node with the
// resources it reads and writes. Passes implementing UIDrawer add their own
// fields after their node.
func Inspect(pool *ResourcePool, ui UI) {
	ui.Header(fmt.Sprintf("Frame graph (%dx%d)", pool.Extent().Width, pool.Extent().Height))
	for _, h := range pool.Nodes() {
		node := pool.Node(h)
		ui.Header(node.Info.Name)
		for _, r := range node.Info.Reads {
			ui.Text("read", describe(pool, r))
		}
		for _, r := range node.Info.Writes {
			ui.Text("write", describe(pool, r))
		}
		if drawer, ok := node.Pass.(UIDrawer); ok {
			drawer.DrawUI(ui)
		}
	}
}

func describe(pool *ResourcePool, h ResourceHandle) string {
	declared := pool.Resource(h)
	actual := declared
	if ref, ok := declared.Info.(*ReferenceInfo); ok && ref.Resolved.IsValid() {
		actual = pool.Resource(ref.Resolved)
	}
	desc := fmt.Sprintf("%s [%s] %s", declared.Name, actual.Kind(), declared.Usage)
	if actual.Texture.IsValid() && pool.Created() {
		t := pool.Texture(actual.Texture)
		desc += fmt.Sprintf(" %dx%d %s", t.Extent.Width, t.Extent.Height, t.ResizeMode)
	}
	if actual.Buffer.IsValid() && pool.Created() {
		b := pool.Buffer(actual.Buffer)
		desc += fmt.Sprintf(" %d bytes", b.Size)
	}
	return desc
}

// LogUI draws the inspector into the engine log at debug level.
type LogUI struct {
	lines []string
}

func (l *LogUI) Header(title string) {
	l.lines = append(l.lines, "== "+title)
}

func (l *LogUI) Text(label string, value any) {
	l.lines = append(l.lines, fmt.Sprintf("   %s: %v", label, value))
}

// Flush writes the collected lines and starts over.
func (l *LogUI) Flush() {
	if len(l.lines) > 0 {
		core.LogDebug("%s", strings.Join(l.lines, "\n"))
	}
	l.lines = l.lines[:0]
}

func (l *LogUI) Lines() []string {
	return l.lines
}
