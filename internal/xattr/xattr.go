// Package xattr narrows the extended-attribute primitive the spec marks as
// an external collaborator (spec.md §4.3, §6) down to the three operations
// the path probe actually needs: read the cached size hint, write it back
// when absent, and detect whether the filesystem supports xattrs at all.
package xattr

import (
	"encoding/binary"

	pkgxattr "github.com/pkg/xattr"
)

// SizeAttr is the extended attribute holding the cached weight hint.
const SizeAttr = "user.md.size"

// Interface is the xattr collaborator the path probe depends on.
type Interface interface {
	// Supported reports whether path's filesystem supports extended
	// attributes at all.
	Supported(path string) bool
	// GetSize reads the cached SizeAttr value, returning ok=false if unset.
	GetSize(path string) (value uint64, ok bool, err error)
	// SetSize writes the SizeAttr value.
	SetSize(path string, value uint64) error
}

// Default is the production adapter over github.com/pkg/xattr.
type Default struct{}

var _ Interface = Default{}

func (Default) Supported(path string) bool {
	// A harmless probe attribute; ENOTSUP/EOPNOTSUPP distinguishes
	// "unsupported" from "attribute not present" (ENODATA).
	_, err := pkgxattr.Get(path, SizeAttr)
	if err == nil {
		return true
	}
	return !isUnsupported(err)
}

func (Default) GetSize(path string) (uint64, bool, error) {
	raw, err := pkgxattr.Get(path, SizeAttr)
	if err != nil {
		if isNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint64(raw), true, nil
}

func (Default) SetSize(path string, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return pkgxattr.Set(path, SizeAttr, buf)
}

func isNotExist(err error) bool {
	if pe, ok := err.(*pkgxattr.Error); ok {
		return pe.Err == pkgxattr.ENOATTR
	}
	return false
}

func isUnsupported(err error) bool {
	if pe, ok := err.(*pkgxattr.Error); ok {
		return pe.Err != pkgxattr.ENOATTR
	}
	return true
}
