// Package template converts a flat AYON folder listing into an Aquarium
// import plan: a tree of items under a project root, reusable Template items
// for each distinct (type, task names) signature, and the edges linking them.
//
// Items are addressed by their index in Plan.Items until the import assigns
// real keys, so every item appears after its ancestors.
package template

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
)

// Edge types.
const (
	EdgeChild    = "Child"
	EdgeTemplate = "Template"
)

// Item types created by the synthesizer.
const (
	TypeProject  = "Project"
	TypeGroup    = "Group"
	TypeTemplate = "Template"
	TypeTask     = "Task"
)

// Edge links two items of a plan by index.
type Edge struct {
	Source int    `json:"source" yaml:"source"`
	Target int    `json:"target" yaml:"target"`
	Type   string `json:"type" yaml:"type"`
}

// Plan is the result of a conversion.
type Plan struct {
	Items []model.Item `json:"items" yaml:"items"`
	Edges []Edge       `json:"edges" yaml:"edges"`
	// Origins holds, per item, the AYON folder id it was built from. Empty
	// for the root, templates and template tasks.
	Origins []string `json:"origins" yaml:"origins"`
	// Dropped lists the AYON folder ids whose parent never got placed.
	Dropped   []string `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Templates int      `json:"templates" yaml:"templates"`
}

// Synthesizer builds plans.
type Synthesizer struct {
	folderLike map[string]struct{}
	logger     logger.Logger
}

// New creates a Synthesizer. Folder-like types default to "Folder".
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		folderLike: map[string]struct{}{"Folder": {}},
		logger:     logger.Get().Named("template"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type node struct {
	entry    model.HierarchyEntry
	parent   *node
	children []*node
}

type templateDef struct {
	name     string
	itemType string
	tasks    []string
}

// Synthesize converts entries into a plan rooted at a project named
// projectName.
//
// Entries are placed in input order. An entry whose parent is not placed yet
// waits in an orphan queue that is walked exactly once after the first pass;
// an orphan whose parent is still missing then is dropped, never attached to
// the root. Chains of orphans (a grandchild listed before its parent, both
// before the grandparent) are therefore only partly recovered. Repeated ids
// keep their first entry.
//
// Each (type, task names) signature gets one template, named after the
// parent of the first entry carrying it in input order.
func (s *Synthesizer) Synthesize(ctx context.Context, projectName string, entries []model.HierarchyEntry) Plan {
	root := &node{}
	placed := make(map[string]*node, len(entries))
	var orphans []model.HierarchyEntry
	queued := make(map[string]struct{})

	place := func(e model.HierarchyEntry, parent *node) {
		n := &node{entry: e, parent: parent}
		parent.children = append(parent.children, n)
		placed[e.ID] = n
	}

	for _, e := range entries {
		if _, dup := placed[e.ID]; dup {
			continue
		}
		if _, dup := queued[e.ID]; dup {
			continue
		}
		switch parent, ok := placed[e.ParentID]; {
		case e.ParentID == "":
			place(e, root)
		case ok:
			place(e, parent)
		default:
			queued[e.ID] = struct{}{}
			orphans = append(orphans, e)
		}
	}

	var dropped []string
	for _, e := range orphans {
		if parent, ok := placed[e.ParentID]; ok {
			place(e, parent)
			continue
		}
		s.logger.Warn(ctx, "dropping folder whose parent was not found",
			logger.String("id", e.ID),
			logger.String("name", e.Name),
			logger.String("parentId", e.ParentID),
		)
		dropped = append(dropped, e.ID)
	}

	b := &builder{s: s, templates: map[string]int{}}
	defined := make(map[string]struct{}, len(placed))
	for _, e := range entries {
		n, ok := placed[e.ID]
		if !ok {
			continue
		}
		if _, done := defined[e.ID]; done {
			continue
		}
		defined[e.ID] = struct{}{}
		parentLabel := projectName
		if n.parent != root {
			parentLabel = labelOf(n.parent.entry)
		}
		b.define(n.entry, parentLabel)
	}

	b.add(model.Item{Type: TypeProject, Data: model.ItemData{Name: projectName}}, "")
	for _, child := range root.children {
		b.walk(child, 0)
	}
	b.emitTemplates()

	return Plan{
		Items:     b.items,
		Edges:     b.edges,
		Origins:   b.origins,
		Dropped:   dropped,
		Templates: len(b.defs),
	}
}

type templateLink struct {
	item     int
	template int
}

type builder struct {
	s         *Synthesizer
	items     []model.Item
	origins   []string
	edges     []Edge
	defs      []templateDef
	templates map[string]int
	links     []templateLink
}

func (b *builder) add(item model.Item, origin string) int {
	b.items = append(b.items, item)
	b.origins = append(b.origins, origin)
	return len(b.items) - 1
}

func labelOf(e model.HierarchyEntry) string {
	if e.Label != "" {
		return e.Label
	}
	return e.Name
}

// signature is the template key of e, empty when e carries no tasks.
func (b *builder) signature(e model.HierarchyEntry) (string, []string) {
	tasks := taskSet(e.TaskNames)
	if !e.HasTasks || len(tasks) == 0 {
		return "", nil
	}
	return b.s.itemType(e.Type) + "|" + strings.Join(tasks, "\x00"), tasks
}

// define registers the template of e unless its signature already has one.
func (b *builder) define(e model.HierarchyEntry, parentLabel string) {
	sig, tasks := b.signature(e)
	if sig == "" {
		return
	}
	if _, ok := b.templates[sig]; ok {
		return
	}
	b.templates[sig] = len(b.defs)
	b.defs = append(b.defs, templateDef{name: parentLabel, itemType: b.s.itemType(e.Type), tasks: tasks})
}

// walk emits n and its subtree in pre-order.
func (b *builder) walk(n *node, parent int) {
	e := n.entry
	label := labelOf(e)

	idx := b.add(model.Item{Type: b.s.itemType(e.Type), Data: model.ItemData{Name: label}}, e.ID)
	b.edges = append(b.edges, Edge{Source: parent, Target: idx, Type: EdgeChild})

	if sig, _ := b.signature(e); sig != "" {
		b.links = append(b.links, templateLink{item: idx, template: b.templates[sig]})
	}

	for _, child := range n.children {
		b.walk(child, idx)
	}
}

// emitTemplates appends templates as children of the root, each followed by
// its tasks, then the Template edges.
func (b *builder) emitTemplates() {
	indexOf := make([]int, len(b.defs))
	for i, def := range b.defs {
		tpl := b.add(model.Item{
			Type: TypeTemplate,
			Data: model.ItemData{
				Name:         def.name,
				TemplateData: map[string]any{"type": def.itemType},
			},
		}, "")
		indexOf[i] = tpl
		b.edges = append(b.edges, Edge{Source: 0, Target: tpl, Type: EdgeChild})
		for _, task := range def.tasks {
			t := b.add(model.Item{Type: TypeTask, Data: model.ItemData{Name: task}}, "")
			b.edges = append(b.edges, Edge{Source: tpl, Target: t, Type: EdgeChild})
		}
	}
	for _, link := range b.links {
		b.edges = append(b.edges, Edge{Source: link.item, Target: indexOf[link.template], Type: EdgeTemplate})
	}
}

func (s *Synthesizer) itemType(declared string) string {
	if _, ok := s.folderLike[declared]; ok {
		return TypeGroup
	}
	return declared
}

// taskSet returns the sorted distinct task names.
func taskSet(names []string) []string {
	out := slices.Clone(names)
	sort.Strings(out)
	return slices.Compact(out)
}
