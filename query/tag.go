package query

// ListID is the sentinel identifier meaning "any list query of this type".
const ListID = "LIST"

// Tag labels a cached result with the entity it depends on.
type Tag struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (t Tag) String() string {
	return t.Type + ":" + t.ID
}

// IDTag returns the tag for a single entity.
func IDTag(entityType, id string) Tag {
	return Tag{Type: entityType, ID: id}
}

// ListTag returns the tag shared by every list query of entityType.
func ListTag(entityType string) Tag {
	return Tag{Type: entityType, ID: ListID}
}

// EntityTags returns the tags a mutation on a single entity invalidates: the
// entity itself and its type's LIST tag.
func EntityTags(entityType, id string) []Tag {
	return []Tag{IDTag(entityType, id), ListTag(entityType)}
}

// ListTags returns one tag per id plus the LIST tag.
func ListTags(entityType string, ids []string) []Tag {
	tags := make([]Tag, 0, len(ids)+1)
	for _, id := range ids {
		tags = append(tags, IDTag(entityType, id))
	}
	return append(tags, ListTag(entityType))
}

type tagSet map[Tag]struct{}

func newTagSet(tags []Tag) tagSet {
	set := make(tagSet, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

func (s tagSet) intersects(tags []Tag) bool {
	for _, t := range tags {
		if _, ok := s[t]; ok {
			return true
		}
	}
	return false
}
