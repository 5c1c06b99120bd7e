package parse

import (
	"encoding/json"
	"fmt"

	"igvault/pkg/merge"
)

// Saver extracts keyed records of one content type from a raw API capture.
// Extract is best-effort: payloads that don't contain the type's shape
// yield an empty list, never an error.
type Saver struct {
	Name      string
	Container string
	Extract   func(data []byte) []merge.Pair
}

// Stories extracts story reel trays, keyed by reel id.
func Stories() Saver {
	return Saver{
		Name:      "stories",
		Container: merge.ContainerStories,
		Extract: func(data []byte) []merge.Pair {
			root := decode(data)
			if root == nil {
				return nil
			}
			for _, key := range []string{"xdt_api__v1__feed__reels_media", "reels_media"} {
				v, ok := FindValueByKey(root, key)
				if !ok {
					continue
				}
				// the xdt wrapper nests the tray one level down
				if m, ok := v.(map[string]interface{}); ok {
					if inner, ok := m["reels_media"]; ok {
						v = inner
					}
				}
				if recs := keyedByID(v, "id"); len(recs) > 0 {
					return recs
				}
			}
			return nil
		},
	}
}

// Highlights extracts highlight tray edges, keyed by node id.
func Highlights() Saver {
	return Saver{
		Name:      "highlights",
		Container: merge.ContainerHighlights,
		Extract: func(data []byte) []merge.Pair {
			root := decode(data)
			if root == nil {
				return nil
			}
			v, ok := FindValueByKey(root, "highlights")
			if !ok {
				return nil
			}
			edges, ok := FindValueByKey(v, "edges")
			if !ok {
				return nil
			}
			list, ok := edges.([]interface{})
			if !ok {
				return nil
			}
			var recs []merge.Pair
			for _, e := range list {
				node, ok := FindValueByKey(e, "node")
				if !ok {
					continue
				}
				if p, ok := pairFromID(node, "id"); ok {
					recs = append(recs, p)
				}
			}
			return recs
		},
	}
}

// Reels extracts clip media from the clips_user connection, keyed by media
// pk (falling back to id).
func Reels() Saver {
	return Saver{
		Name:      "reels",
		Container: merge.ContainerStories, // reels share the story tray shape
		Extract: func(data []byte) []merge.Pair {
			root := decode(data)
			if root == nil {
				return nil
			}
			v, ok := FindValueByKey(root, "xdt_api__v1__clips_user")
			if !ok {
				return nil
			}
			edges, ok := FindValueByKey(v, "edges")
			if !ok {
				return nil
			}
			list, ok := edges.([]interface{})
			if !ok {
				return nil
			}
			var recs []merge.Pair
			for _, e := range list {
				media, ok := FindValueByKey(e, "media")
				if !ok {
					continue
				}
				if p, ok := pairFromID(media, "pk"); ok {
					recs = append(recs, p)
				} else if p, ok := pairFromID(media, "id"); ok {
					recs = append(recs, p)
				}
			}
			return recs
		},
	}
}

// ProfileReel extracts a user's profile story reel, keyed by the reel id.
func ProfileReel() Saver {
	return Saver{
		Name:      "profile_reel",
		Container: merge.ContainerReelsProfile,
		Extract: func(data []byte) []merge.Pair {
			root := decode(data)
			if root == nil {
				return nil
			}
			v, ok := FindValueByKey(root, "reel")
			if !ok {
				return nil
			}
			if p, ok := pairFromID(v, "id"); ok {
				return []merge.Pair{p}
			}
			return nil
		},
	}
}

func decode(data []byte) interface{} {
	var root interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil
	}
	return root
}

// keyedByID converts a decoded array into pairs keyed by the named id field
// of each element. Elements without the field are skipped.
func keyedByID(v interface{}, idField string) []merge.Pair {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var recs []merge.Pair
	for _, e := range list {
		if p, ok := pairFromID(e, idField); ok {
			recs = append(recs, p)
		}
	}
	return recs
}

func pairFromID(v interface{}, idField string) (merge.Pair, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return merge.Pair{}, false
	}
	id, ok := m[idField]
	if !ok {
		return merge.Pair{}, false
	}
	var key string
	switch t := id.(type) {
	case string:
		key = t
	case float64:
		key = fmt.Sprintf("%.0f", t)
	case json.Number:
		key = t.String()
	default:
		return merge.Pair{}, false
	}
	if key == "" {
		return merge.Pair{}, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return merge.Pair{}, false
	}
	return merge.Pair{Key: key, Record: raw}, true
}
