package videos

import "github.com/PortNumber53/tubeshelf/backend/internal/models"

// Merge applies one change to a newest-first list and returns the new list.
// The input slice is never modified.
//
// INSERT prepends, or replaces in place when the id is already present so a
// redelivered insert does not duplicate. UPDATE replaces the matching id and
// ignores unknown ids. DELETE removes the matching id.
func Merge(list []models.Video, ch models.VideoChange) []models.Video {
	idx := -1
	for i := range list {
		if list[i].ID == ch.Video.ID {
			idx = i
			break
		}
	}

	switch ch.Type {
	case models.ChangeInsert:
		if idx >= 0 {
			return replaceAt(list, idx, ch.Video)
		}
		out := make([]models.Video, 0, len(list)+1)
		out = append(out, ch.Video)
		return append(out, list...)
	case models.ChangeUpdate:
		if idx < 0 {
			return clone(list)
		}
		return replaceAt(list, idx, ch.Video)
	case models.ChangeDelete:
		if idx < 0 {
			return clone(list)
		}
		out := make([]models.Video, 0, len(list)-1)
		out = append(out, list[:idx]...)
		return append(out, list[idx+1:]...)
	}
	return clone(list)
}

func replaceAt(list []models.Video, idx int, v models.Video) []models.Video {
	out := clone(list)
	out[idx] = v
	return out
}

func clone(list []models.Video) []models.Video {
	out := make([]models.Video, len(list))
	copy(out, list)
	return out
}
