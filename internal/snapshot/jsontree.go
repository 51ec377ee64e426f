package snapshot

import (
	"fmt"

	"github.com/goccy/go-json"

	"qstore/internal/intern"
	"qstore/internal/schema"
	"qstore/internal/store"
)

// treeNode is the JSON shape of one entity: "Children" is inlined as
// nested objects rather than left as a flat EntityList, and every
// other EntityReference/EntityList field renders its target(s) as
// "/path/from/root" strings (the Root itself renders as ""). Round-trip is not guaranteed, per
// spec.md §4.H.
type treeNode struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Name     string                 `json:"name"`
	Fields   map[string]interface{} `json:"fields"`
	Children []*treeNode            `json:"children"`
}

// ExportJSONTree renders snap as a human-readable tree rooted at
// Root, per spec.md §4.H.
func ExportJSONTree(snap store.StoreSnapshot) ([]byte, error) {
	entityTypeName := func(t intern.EntityType) string {
		if i := int(t) - 1; i >= 0 && i < len(snap.EntityNames) {
			return snap.EntityNames[i]
		}
		return "?"
	}
	fieldName := func(f intern.FieldType) string {
		if i := int(f) - 1; i >= 0 && i < len(snap.FieldNames) {
			return snap.FieldNames[i]
		}
		return "?"
	}
	textualID := func(id intern.EntityId) string {
		return fmt.Sprintf("%s$%d", entityTypeName(id.Type()), id.Index())
	}

	byID := make(map[intern.EntityId]*store.EntitySnapshot, len(snap.Entities))
	for i := range snap.Entities {
		byID[snap.Entities[i].ID] = &snap.Entities[i]
	}

	var childrenField intern.FieldType
	for i, name := range snap.FieldNames {
		if name == intern.ChildrenFieldName {
			childrenField = intern.FieldType(i + 1)
			break
		}
	}

	var rootID intern.EntityId
	found := false
	for _, es := range snap.Entities {
		if entityTypeName(es.Type) == intern.RootTypeName {
			rootID = es.ID
			found = true
			break
		}
	}
	if !found {
		return json.Marshal(map[string]interface{}{})
	}

	paths := make(map[intern.EntityId]string, len(snap.Entities))
	var computePaths func(id intern.EntityId, path string)
	computePaths = func(id intern.EntityId, path string) {
		if _, seen := paths[id]; seen {
			return
		}
		paths[id] = path
		es, ok := byID[id]
		if !ok {
			return
		}
		for _, c := range es.Cells {
			if c.Field != childrenField {
				continue
			}
			for _, child := range c.Value.List {
				childName := ""
				if ce, ok := byID[child]; ok {
					childName = ce.Name
				}
				computePaths(child, path+"/"+childName)
			}
		}
	}
	computePaths(rootID, "")

	renderValue := func(v schema.Value) interface{} {
		switch v.Variant {
		case schema.VariantEntityReference:
			if v.Ref == nil {
				return nil
			}
			if p, ok := paths[*v.Ref]; ok {
				return p
			}
			return nil
		case schema.VariantEntityList:
			out := make([]interface{}, 0, len(v.List))
			for _, id := range v.List {
				if p, ok := paths[id]; ok {
					out = append(out, p)
				} else {
					out = append(out, nil)
				}
			}
			return out
		case schema.VariantBlob:
			return v.Blob
		case schema.VariantBool:
			return v.Bool
		case schema.VariantChoice:
			return v.Choice
		case schema.VariantFloat:
			return v.Float
		case schema.VariantInt:
			return v.Int
		case schema.VariantString:
			return v.Str
		case schema.VariantTimestamp:
			return v.Timestamp
		default:
			return nil
		}
	}

	var buildNode func(id intern.EntityId) *treeNode
	buildNode = func(id intern.EntityId) *treeNode {
		es, ok := byID[id]
		if !ok {
			return nil
		}
		node := &treeNode{
			ID:     textualID(id),
			Type:   entityTypeName(es.Type),
			Name:   es.Name,
			Fields: make(map[string]interface{}),
		}
		for _, c := range es.Cells {
			if c.Field == childrenField {
				for _, child := range c.Value.List {
					if cn := buildNode(child); cn != nil {
						node.Children = append(node.Children, cn)
					}
				}
				continue
			}
			node.Fields[fieldName(c.Field)] = renderValue(c.Value)
		}
		return node
	}

	root := buildNode(rootID)
	if root == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(root)
}
