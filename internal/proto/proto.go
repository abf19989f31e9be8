// Package proto defines the fixed-layout wire records exchanged between
// vectord and its clients over the intake and reply queues.
//
// Every record is a fixed-size byte layout so it can be written to and read
// from a queue message (a reused []byte buffer) without any framing: names and
// reply-queue identifiers are null-padded, null-terminated fixed-length
// byte arrays, and integer fields are little-endian int32s.
package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
)

const (
	// NameLen is the on-wire size of a name field, one byte longer than
	// MaxNameLen to always leave room for the terminating NUL.
	NameLen = 40
	// MaxNameLen is the longest vector name accepted (fixed at 1..39 to
	// match NameLen's reserved terminator byte).
	MaxNameLen = 39
	// ReplyQueueLen is the on-wire size of a reply-queue name field.
	ReplyQueueLen = 64
	// MaxReplyQueueLen is the longest reply-queue name accepted, one byte
	// short of ReplyQueueLen for the same reason as MaxNameLen.
	MaxReplyQueueLen = 63
)

// Status codes. Part of the wire contract; never renumber these.
const (
	StatusCreated        int32 = 1
	StatusAlreadyExists  int32 = 0
	StatusError          int32 = -1
	StatusSetOK          int32 = 0
	StatusSetFail        int32 = -1
	StatusGetOK          int32 = 0
	StatusGetFail        int32 = -1
	StatusDestroyed      int32 = 1
	StatusDestroyFail    int32 = -1
)

var errShortBuffer = errors.New("proto: buffer too short")

// ErrInvalidName is returned by ValidateName for a name that does not match
// the wire contract: 1..39 characters of [A-Za-z0-9].
var ErrInvalidName = errors.New("proto: invalid vector name")

var nameRe = regexp.MustCompile(`^[A-Za-z0-9]{1,` + fmt.Sprint(MaxNameLen) + `}$`)

// ValidateName reports whether name is an acceptable VectorName.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func putName(dst []byte, name string) error {
	if len(name) >= len(dst) {
		return fmt.Errorf("proto: name %q exceeds field width %d", name, len(dst)-1)
	}
	clear(dst)
	copy(dst, name)
	return nil
}

func getName(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// CreateReq is the /init intake record.
type CreateReq struct {
	Name       string
	Size       int32
	ReplyQueue string
}

// WireSize returns the fixed wire size of CreateReq.
func (CreateReq) WireSize() int { return NameLen + 4 + ReplyQueueLen }

// MarshalBinary encodes r into a fresh fixed-size buffer.
func (r CreateReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, r.WireSize())
	if err := putName(buf[:NameLen], r.Name); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[NameLen:NameLen+4], uint32(r.Size))
	if err := putName(buf[NameLen+4:], r.ReplyQueue); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalBinary decodes r from a fixed-size buffer produced by MarshalBinary.
func (r *CreateReq) UnmarshalBinary(data []byte) error {
	if len(data) < r.WireSize() {
		return errShortBuffer
	}
	r.Name = getName(data[:NameLen])
	r.Size = int32(binary.LittleEndian.Uint32(data[NameLen : NameLen+4]))
	r.ReplyQueue = getName(data[NameLen+4 : NameLen+4+ReplyQueueLen])
	return nil
}

// SetReq is the /set intake record.
type SetReq struct {
	Name       string
	Pos        int32
	Value      int32
	ReplyQueue string
}

func (SetReq) WireSize() int { return NameLen + 4 + 4 + ReplyQueueLen }

func (r SetReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, r.WireSize())
	if err := putName(buf[:NameLen], r.Name); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[NameLen:NameLen+4], uint32(r.Pos))
	binary.LittleEndian.PutUint32(buf[NameLen+4:NameLen+8], uint32(r.Value))
	if err := putName(buf[NameLen+8:], r.ReplyQueue); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *SetReq) UnmarshalBinary(data []byte) error {
	if len(data) < r.WireSize() {
		return errShortBuffer
	}
	r.Name = getName(data[:NameLen])
	r.Pos = int32(binary.LittleEndian.Uint32(data[NameLen : NameLen+4]))
	r.Value = int32(binary.LittleEndian.Uint32(data[NameLen+4 : NameLen+8]))
	r.ReplyQueue = getName(data[NameLen+8 : NameLen+8+ReplyQueueLen])
	return nil
}

// GetReq is the /get intake record.
type GetReq struct {
	Name       string
	Pos        int32
	ReplyQueue string
}

func (GetReq) WireSize() int { return NameLen + 4 + ReplyQueueLen }

func (r GetReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, r.WireSize())
	if err := putName(buf[:NameLen], r.Name); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[NameLen:NameLen+4], uint32(r.Pos))
	if err := putName(buf[NameLen+4:], r.ReplyQueue); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *GetReq) UnmarshalBinary(data []byte) error {
	if len(data) < r.WireSize() {
		return errShortBuffer
	}
	r.Name = getName(data[:NameLen])
	r.Pos = int32(binary.LittleEndian.Uint32(data[NameLen : NameLen+4]))
	r.ReplyQueue = getName(data[NameLen+4 : NameLen+4+ReplyQueueLen])
	return nil
}

// DestroyReq is the /destroy intake record.
type DestroyReq struct {
	Name       string
	ReplyQueue string
}

func (DestroyReq) WireSize() int { return NameLen + ReplyQueueLen }

func (r DestroyReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, r.WireSize())
	if err := putName(buf[:NameLen], r.Name); err != nil {
		return nil, err
	}
	if err := putName(buf[NameLen:], r.ReplyQueue); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *DestroyReq) UnmarshalBinary(data []byte) error {
	if len(data) < r.WireSize() {
		return errShortBuffer
	}
	r.Name = getName(data[:NameLen])
	r.ReplyQueue = getName(data[NameLen : NameLen+ReplyQueueLen])
	return nil
}

// IntReply is the reply shape for Create, Set and Destroy.
type IntReply struct {
	Status int32
}

func (IntReply) WireSize() int { return 4 }

func (r IntReply) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(r.Status))
	return buf, nil
}

func (r *IntReply) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errShortBuffer
	}
	r.Status = int32(binary.LittleEndian.Uint32(data[:4]))
	return nil
}

// GetReply is the reply shape for Get.
type GetReply struct {
	Value  int32
	Status int32
}

func (GetReply) WireSize() int { return 8 }

func (r GetReply) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Value))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Status))
	return buf, nil
}

func (r *GetReply) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errShortBuffer
	}
	r.Value = int32(binary.LittleEndian.Uint32(data[0:4]))
	r.Status = int32(binary.LittleEndian.Uint32(data[4:8]))
	return nil
}
