package models

import (
	"path"
	"regexp"
	"strings"
)

const (
	// KeyPrefix is de root van alle uitnodigingen in de blob store.
	KeyPrefix = "i/"

	PageName      = "index.html"
	MergedStem    = "merged"
	ThumbnailStem = "thumb_1200x630"

	// ThumbnailWidth and ThumbnailHeight are the fixed social-preview dimensions.
	ThumbnailWidth  = 1200
	ThumbnailHeight = 630
)

var (
	idPattern     = regexp.MustCompile(`^[0-9]{6,10}$`)
	memberPattern = regexp.MustCompile(`^(index\.html|merged\.(png|jpe?g)|thumb_1200x630\.jpe?g)$`)
	keyPattern    = regexp.MustCompile(`^i/[0-9]{6,10}/(index\.html|merged\.(png|jpe?g)|thumb_1200x630\.jpe?g)$`)
)

// ValidID reports whether id is a 6-10 digit invitation id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ValidMemberName reports whether name is one of the canonical artifact names.
func ValidMemberName(name string) bool {
	return memberPattern.MatchString(name)
}

// ValidMemberKey reports whether key is a canonical artifact key (i/<id>/<name>).
func ValidMemberKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Prefix returns the key prefix that holds every artifact of an invitation.
func Prefix(id string) string {
	return KeyPrefix + id + "/"
}

// Key builds the canonical storage key for a member of invitation id.
func Key(id, name string) string {
	return Prefix(id) + name
}

// PageKey is the canonical key of the page artifact.
func PageKey(id string) string {
	return Key(id, PageName)
}

// Slot is one of the three artifact roles of an invitation.
type Slot int

const (
	SlotPage Slot = iota
	SlotMerged
	SlotThumbnail
)

// Slots lists every slot in inspection order.
var Slots = []Slot{SlotPage, SlotMerged, SlotThumbnail}

// UploadOrder is the order in which members are written. The page goes last so it
// only becomes resolvable once both images exist.
var UploadOrder = []Slot{SlotMerged, SlotThumbnail, SlotPage}

func (s Slot) String() string {
	switch s {
	case SlotPage:
		return "page"
	case SlotMerged:
		return "merged"
	case SlotThumbnail:
		return "thumbnail"
	default:
		return "unknown"
	}
}

// Candidates returns the acceptable base names for the slot in priority order.
func (s Slot) Candidates() []string {
	switch s {
	case SlotPage:
		return []string{PageName}
	case SlotMerged:
		return []string{MergedStem + ".jpg", MergedStem + ".jpeg", MergedStem + ".png"}
	case SlotThumbnail:
		return []string{ThumbnailStem + ".jpg", ThumbnailStem + ".jpeg"}
	default:
		return nil
	}
}

// SlotCandidates returns the candidate groups for all slots, indexed like Slots.
func SlotCandidates() [][]string {
	groups := make([][]string, len(Slots))
	for i, s := range Slots {
		groups[i] = s.Candidates()
	}
	return groups
}

// SlotForName maps a canonical member name to its slot.
func SlotForName(name string) (Slot, bool) {
	for _, s := range Slots {
		for _, c := range s.Candidates() {
			if c == name {
				return s, true
			}
		}
	}
	return 0, false
}

// MemberContentType returns the content type a member is stored with.
func MemberContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// AssetContentType infers the content type of a delivered asset from its extension.
func AssetContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// BaseName returns the final path segment of an archive entry name.
func BaseName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
