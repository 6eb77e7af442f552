package storage

import (
	"encoding/binary"
	"time"
)

// uidKey encodes a uid as a 4-byte big-endian key so bolt's natural
// byte-order iteration equals numeric order.
func uidKey(uid uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uid)
	return b
}

func parseUID(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// timeUIDKey encodes a (timestamp, uid) pair as a 12-byte big-endian key:
// 8 bytes of UnixNano followed by the 4-byte uid. Iterating a bucket keyed
// this way in byte order yields ascending (time, uid) order, which is what
// a range scan over enqueued_at/started_at/finished_at needs.
func timeUIDKey(t time.Time, uid uint32) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint64(b[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint32(b[8:], uid)
	return b
}

func timeOnlyKey(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func uidFromTimeUIDKey(b []byte) uint32 {
	return binary.BigEndian.Uint32(b[8:])
}
