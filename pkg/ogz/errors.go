package ogz

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Map format errors.
var (
	ErrInvalidMagic       = errors.New("invalid map magic: expected 'OCTA'")
	ErrMalformedHeader    = errors.New("malformed map header")
	ErrUnsupportedVersion = errors.New("unsupported map version")
	ErrTruncated          = errors.New("truncated map data")
	ErrCorruptNode        = errors.New("corrupt octree node")
	ErrUnknownVarType     = errors.New("unknown variable type")
	ErrFieldTooLong       = errors.New("field too long for map format")
)

// FormatError reports which decode step rejected the stream.
type FormatError struct {
	Op  string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ogz: %s: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err means the stream itself is unusable.
// A corrupt octree node is not a format error: the header and entities were
// still read.
func IsFormatError(err error) bool {
	var fe *FormatError
	if errors.As(err, &fe) {
		return !errors.Is(fe.Err, ErrCorruptNode)
	}
	return false
}

// NoticeKind classifies a compatibility notice.
type NoticeKind int

const (
	NoticeForeignGame NoticeKind = iota
	NoticeEntityCap
	NoticeEntityOutside
	NoticeMapModelTexture
	NoticeBlendMap
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeForeignGame:
		return "foreign-game"
	case NoticeEntityCap:
		return "entity-cap"
	case NoticeEntityOutside:
		return "entity-outside"
	case NoticeMapModelTexture:
		return "mapmodel-texture"
	case NoticeBlendMap:
		return "blendmap"
	default:
		return fmt.Sprintf("notice(%d)", int(k))
	}
}

// Notice is a compatibility condition that did not stop the load.
type Notice struct {
	Kind    NoticeKind
	Index   int // entity or slot index, -1 when not applicable
	Message string
}

func (n *Notice) Error() string { return n.Message }

// Report collects the notices produced by one decode.
type Report struct {
	Version  int
	GameType string
	// CRC is the checksum of the stream, set only when decoding succeeded.
	CRC     uint32
	notices []*Notice
}

func (r *Report) notify(kind NoticeKind, index int, format string, args ...any) {
	r.notices = append(r.notices, &Notice{Kind: kind, Index: index, Message: fmt.Sprintf(format, args...)})
}

// Notices returns the notices in the order they were raised.
func (r *Report) Notices() []*Notice {
	if r == nil {
		return nil
	}
	return r.notices
}

// Err combines all notices into a single error, or nil if there were none.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var err error
	for _, n := range r.notices {
		err = multierr.Append(err, n)
	}
	return err
}
