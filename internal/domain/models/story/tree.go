package story

// TreeChild is a child snippet as listed by GetTree
type TreeChild struct {
	Snippet
	Active bool `json:"active"`
}

// TreeEntry lists the children of one parent snippet
// Only snippets with at least one child appear in a tree listing
type TreeEntry struct {
	Parent   Snippet     `json:"parent"`
	Children []TreeChild `json:"children"`
}

// BuildTree groups snippets by parent. Children keep the input order,
// so callers pass snippets sorted by created_at.
func BuildTree(snippets []Snippet) []TreeEntry {
	byID := make(map[string]int, len(snippets))
	for i := range snippets {
		byID[snippets[i].ID] = i
	}

	var order []string
	children := make(map[string][]TreeChild)
	for _, s := range snippets {
		if s.ParentID == nil {
			continue
		}
		parentIdx, ok := byID[*s.ParentID]
		if !ok {
			continue
		}
		parent := snippets[parentIdx]
		if _, seen := children[parent.ID]; !seen {
			order = append(order, parent.ID)
		}
		active := parent.ChildID != nil && *parent.ChildID == s.ID
		children[parent.ID] = append(children[parent.ID], TreeChild{Snippet: s, Active: active})
	}

	entries := make([]TreeEntry, 0, len(order))
	for _, parentID := range order {
		entries = append(entries, TreeEntry{
			Parent:   snippets[byID[parentID]],
			Children: children[parentID],
		})
	}
	return entries
}
