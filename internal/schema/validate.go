package schema

import (
	"fmt"
	"slices"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/util"
)

// Resolution describes the first invalid part of a document and the patches
// that repair it. Applying them can reveal the next problem, so repairs run
// until Check returns nil.
type Resolution struct {
	Description string     `json:"description"`
	Action      string     `json:"action"`
	Path        pt.Path    `json:"path"`
	Item        any        `json:"item"`
	Patches     patch.List `json:"patches"`
}

// InvalidValueError reports content the schema rejects. It matches
// ErrSchemaMismatch.
type InvalidValueError struct {
	Resolution Resolution
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: %s at %s", ErrSchemaMismatch, e.Resolution.Description, e.Resolution.Path)
}

func (e *InvalidValueError) Is(target error) bool { return target == ErrSchemaMismatch }

// Validate checks every block against the schema. The error of the first
// mismatch is an *InvalidValueError.
func (s *Schema) Validate(blocks []pt.Block) error {
	if r := s.Check(blocks, util.NewKey); r != nil {
		return &InvalidValueError{Resolution: *r}
	}
	return nil
}

// ValidateBlock checks a single block.
func (s *Schema) ValidateBlock(block pt.Block) error {
	return s.Validate([]pt.Block{block})
}

// Check returns the resolution for the first invalid part of blocks, or nil.
// An undefined or empty document is valid. newKey supplies keys for content
// the repair creates or that lacks one.
func (s *Schema) Check(blocks []pt.Block, newKey func() string) *Resolution {
	for i, block := range blocks {
		if r := s.checkBlock(i, block, newKey); r != nil {
			return r
		}
	}
	return nil
}

func (s *Schema) checkBlock(i int, block pt.Block, newKey func() string) *Resolution {
	at := pt.Path{pt.Index(i)}
	if key := block.BlockKey(); key != "" {
		at = pt.BlockPath(key)
	}
	item := block.Value()
	resolve := func(description, action string, patches ...patch.Patch) *Resolution {
		return &Resolution{Description: description, Action: action, Path: at, Item: item, Patches: patches}
	}
	if block.BlockKey() == "" {
		return resolve("Block has no _key", "Set a new random _key on the block",
			patch.Set{Path: append(at.Clone(), pt.Field("_key")), Value: newKey()})
	}
	switch b := block.(type) {
	case *pt.ObjectBlock:
		if b.Type == pt.DefaultBlockType && s.BlockType != pt.DefaultBlockType {
			return resolve(fmt.Sprintf("Block has type %q", b.Type), fmt.Sprintf("Use type %q", s.BlockType),
				patch.Set{Path: append(at.Clone(), pt.Field("_type")), Value: s.BlockType})
		}
		if !slices.Contains(s.BlockObjects, b.Type) {
			return resolve(fmt.Sprintf("Block type %q is not in the schema", b.Type), "Remove the block",
				patch.Unset{Path: at})
		}
		return nil
	case *pt.TextBlock:
		return s.checkTextBlock(b, at, resolve, newKey)
	}
	return resolve(fmt.Sprintf("Unsupported block %T", block), "Remove the block", patch.Unset{Path: at})
}

type resolveFunc func(description, action string, patches ...patch.Patch) *Resolution

func (s *Schema) checkTextBlock(b *pt.TextBlock, at pt.Path, resolve resolveFunc, newKey func() string) *Resolution {
	field := func(name pt.Field) pt.Path { return append(at.Clone(), name) }
	if b.Type != s.BlockType {
		return resolve(fmt.Sprintf("Text block has type %q", b.Type), "Remove the block", patch.Unset{Path: at})
	}
	if b.Children == nil {
		return resolve("Text block has no children", "Remove the block", patch.Unset{Path: at})
	}
	if b.MarkDefs == nil {
		return resolve("Text block has no markDefs", "Add empty markDefs array",
			patch.Set{Path: field(pt.MarkDefsField), Value: []any{}})
	}
	if b.Style != "" && !slices.Contains(s.Styles, b.Style) {
		return resolve(fmt.Sprintf("Style %q is not in the schema", b.Style), fmt.Sprintf("Use style %q", s.DefaultStyle()),
			patch.Set{Path: field("style"), Value: s.DefaultStyle()})
	}
	if b.ListItem != "" && !slices.Contains(s.Lists, b.ListItem) {
		return resolve(fmt.Sprintf("List item %q is not in the schema", b.ListItem), "Remove the list item",
			patch.Unset{Path: field("listItem")})
	}
	for j, def := range b.MarkDefs {
		if slices.Contains(s.Annotations, def.Type) {
			continue
		}
		seg := pt.Segment(pt.Index(j))
		if def.Key != "" {
			seg = pt.Key(def.Key)
		}
		return resolve(fmt.Sprintf("Annotation type %q is not in the schema", def.Type), "Remove the annotation",
			patch.Unset{Path: append(field(pt.MarkDefsField), seg)})
	}
	if len(b.Children) == 0 {
		span := &pt.Span{Key: newKey(), Type: s.SpanType, Text: "", Marks: []string{}}
		return resolve("Text block has no children", "Insert an empty text",
			patch.Set{Path: field(pt.ChildrenField), Value: []any{span.Value()}})
	}
	defs := b.MarkDefKeys()
	for j, child := range b.Children {
		children := field(pt.ChildrenField)
		key := child.ChildKey()
		if key == "" {
			return resolve("Child has no _key", "Set a new random _key on the object",
				patch.Set{Path: append(children, pt.Index(j), pt.Field("_key")), Value: newKey()})
		}
		childAt := append(children, pt.Key(key))
		switch c := child.(type) {
		case *pt.Span:
			kept := make([]any, 0, len(c.Marks))
			for _, mark := range c.Marks {
				if _, ok := defs[mark]; ok || s.IsDecorator(mark) {
					kept = append(kept, mark)
				}
			}
			if len(kept) != len(c.Marks) {
				return resolve(fmt.Sprintf("Span %s has marks the block does not define", c.Key), "Remove invalid marks",
					patch.Set{Path: append(childAt, pt.MarksField), Value: kept})
			}
		case *pt.InlineObject:
			if !slices.Contains(s.InlineObjects, c.Type) {
				return resolve(fmt.Sprintf("Inline object type %q is not in the schema", c.Type), "Remove the object",
					patch.Unset{Path: childAt})
			}
		}
	}
	return nil
}
