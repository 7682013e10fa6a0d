// Package decoder walks the byte buffer returned by a read on a fanotify
// descriptor and yields one Record per fanotify_event_metadata header.
//
// The binary layout of each record is:
//
//	struct fanotify_event_metadata {
//	    __u32 event_len;     // 4 bytes: total record length
//	    __u8  vers;          // 1 byte: FANOTIFY_METADATA_VERSION
//	    __u8  reserved;      // 1 byte
//	    __u16 metadata_len;  // 2 bytes: length of this header
//	    __u64 mask;          // 8 bytes: event flags
//	    __s32 fd;            // 4 bytes: open descriptor or FAN_NOFD
//	    __s32 pid;           // 4 bytes: acting process
//	}
//
// Fields are in host byte order. The decoder never trusts a length field
// beyond the bytes actually handed to it: a record that does not fit stops
// decoding and no partial record is ever yielded. The version byte is passed
// through as read; a record is judged only by its lengths.
package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fanmon/fanmon/internal/mask"
)

const (
	// HeaderSize is sizeof(struct fanotify_event_metadata).
	HeaderSize = 24
	// MetadataVersion is FANOTIFY_METADATA_VERSION.
	MetadataVersion = 3
	// NoFD is FAN_NOFD, carried by records without a descriptor (e.g. overflow).
	NoFD int32 = -1
)

// Decode failure reasons. They are wrapped in a *DecodeError.
var (
	ErrTruncated   = errors.New("record extends past end of buffer")
	ErrShortRecord = errors.New("record length smaller than header")
)

// DecodeError reports where and why decoding stopped.
type DecodeError struct {
	Offset int
	Reason error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder: offset %d: %v", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Reason }

// Record is one decoded fanotify event. FD is owned by whoever holds the
// record until it is released; the decoder never closes it.
type Record struct {
	EventLen    uint32
	Version     uint8
	MetadataLen uint16
	Mask        mask.Mask
	FD          int32
	PID         int32
}

// Decoder iterates over the records in a buffer, in the style of
// bufio.Scanner:
//
//	d := decoder.New(buf[:n])
//	for d.Next() {
//	    rec := d.Record()
//	    ...
//	}
//	if err := d.Err(); err != nil { ... }
//
// A Decoder is single use.
type Decoder struct {
	buf []byte
	off int
	rec Record
	err error
}

// New returns a Decoder over buf. buf must be exactly the bytes returned by
// the last read.
func New(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Next advances to the next record. It returns false at the end of the
// buffer or on the first malformed record; Err distinguishes the two.
func (d *Decoder) Next() bool {
	if d.err != nil || d.off >= len(d.buf) {
		return false
	}

	remaining := len(d.buf) - d.off
	if remaining < HeaderSize {
		return d.fail(ErrTruncated)
	}

	h := d.buf[d.off : d.off+HeaderSize]
	rec := Record{
		EventLen:    binary.NativeEndian.Uint32(h[0:4]),
		Version:     h[4],
		MetadataLen: binary.NativeEndian.Uint16(h[6:8]),
		Mask:        mask.Mask(binary.NativeEndian.Uint64(h[8:16])),
		FD:          int32(binary.NativeEndian.Uint32(h[16:20])),
		PID:         int32(binary.NativeEndian.Uint32(h[20:24])),
	}

	switch {
	case rec.EventLen < HeaderSize:
		return d.fail(ErrShortRecord)
	case uint64(rec.EventLen) > uint64(remaining):
		return d.fail(ErrTruncated)
	case rec.MetadataLen < HeaderSize || uint32(rec.MetadataLen) > rec.EventLen:
		return d.fail(ErrShortRecord)
	}

	d.rec = rec
	d.off += int(rec.EventLen)
	return true
}

func (d *Decoder) fail(reason error) bool {
	d.err = &DecodeError{Offset: d.off, Reason: reason}
	return false
}

// Record returns the record produced by the last successful Next.
func (d *Decoder) Record() Record { return d.rec }

// Err returns the *DecodeError that stopped decoding, or nil if the buffer
// was consumed completely.
func (d *Decoder) Err() error { return d.err }

// Offset is the byte offset of the next undecoded record.
func (d *Decoder) Offset() int { return d.off }

// Encode renders rec in the kernel layout. EventLen and MetadataLen default
// to HeaderSize and Version to MetadataVersion when zero; when EventLen is
// larger than HeaderSize the tail is zero-filled.
func Encode(rec Record) []byte {
	if rec.EventLen == 0 {
		rec.EventLen = HeaderSize
	}
	if rec.MetadataLen == 0 {
		rec.MetadataLen = HeaderSize
	}
	if rec.Version == 0 {
		rec.Version = MetadataVersion
	}
	size := int(rec.EventLen)
	if size < HeaderSize {
		size = HeaderSize
	}
	b := make([]byte, size)
	binary.NativeEndian.PutUint32(b[0:4], rec.EventLen)
	b[4] = rec.Version
	binary.NativeEndian.PutUint16(b[6:8], rec.MetadataLen)
	binary.NativeEndian.PutUint64(b[8:16], uint64(rec.Mask))
	binary.NativeEndian.PutUint32(b[16:20], uint32(rec.FD))
	binary.NativeEndian.PutUint32(b[20:24], uint32(rec.PID))
	return b
}
