// Package archive locates the invitation members inside an uploaded zip.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cardpost/invite-host/pkg/invites/models"
)

var (
	ErrInvalidArchive = errors.New("invalid zip archive")
	ErrMemberTooLarge = errors.New("archive member too large")
)

// MissingMemberError reports a candidate group without any matching entry.
type MissingMemberError struct {
	Group []string
}

func (e *MissingMemberError) Error() string {
	return "missing " + describeGroup(e.Group)
}

// describeGroup renders ["merged.jpg","merged.png"] as "merged.(jpg|png)".
func describeGroup(group []string) string {
	if len(group) == 1 {
		return group[0]
	}
	stem := strings.TrimSuffix(group[0], path.Ext(group[0]))
	exts := make([]string, 0, len(group))
	for _, name := range group {
		if strings.TrimSuffix(name, path.Ext(name)) != stem {
			return strings.Join(group, " | ")
		}
		exts = append(exts, strings.TrimPrefix(path.Ext(name), "."))
	}
	return fmt.Sprintf("%s.(%s)", stem, strings.Join(exts, "|"))
}

// Member is the entry chosen for one candidate group.
type Member struct {
	Group int
	Name  string // full path inside the archive
	Base  string // matched candidate, used as the stored file name
	File  *zip.File
}

// Open parses an in-memory zip archive.
func Open(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return zr, nil
}

// Locate selects one entry per candidate group. Candidates are tried in order and
// matched exactly (case-sensitive) against the base name of every non-directory
// entry, wherever it is nested. The first group without a match aborts.
func Locate(files []*zip.File, groups [][]string) ([]Member, error) {
	out := make([]Member, 0, len(groups))
	for gi, group := range groups {
		m, ok := pick(files, group)
		if !ok {
			return nil, &MissingMemberError{Group: group}
		}
		m.Group = gi
		out = append(out, m)
	}
	return out, nil
}

func pick(files []*zip.File, candidates []string) (Member, bool) {
	for _, candidate := range candidates {
		var picked *zip.File
		for _, f := range files {
			if isDir(f) {
				continue
			}
			// later duplicates overwrite earlier ones
			if models.BaseName(f.Name) == candidate {
				picked = f
			}
		}
		if picked != nil {
			return Member{Name: picked.Name, Base: candidate, File: picked}, true
		}
	}
	return Member{}, false
}

func isDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// ReadMember decompresses a located member.
func ReadMember(m Member) ([]byte, error) {
	return ReadMemberLimit(m, 0)
}

// ReadMemberLimit decompresses a located member, failing with ErrMemberTooLarge as
// soon as it would exceed limit bytes. A limit <= 0 reads without bound.
func ReadMemberLimit(m Member, limit int64) ([]byte, error) {
	if limit > 0 && m.File.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%s: %w", m.Name, ErrMemberTooLarge)
	}
	rc, err := m.File.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", m.Name, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		// the header size can lie; never decompress more than one byte past the limit
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.Name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w", m.Name, ErrMemberTooLarge)
	}
	return data, nil
}

// LocateSlots runs Locate with the invitation slot candidates and keys the result by slot.
func LocateSlots(files []*zip.File) (map[models.Slot]Member, error) {
	members, err := Locate(files, models.SlotCandidates())
	if err != nil {
		return nil, err
	}
	out := make(map[models.Slot]Member, len(members))
	for _, m := range members {
		out[models.Slots[m.Group]] = m
	}
	return out, nil
}
