package storage

import (
	"bytes"
	"time"

	"github.com/RoaringBitmap/roaring"
	bolt "go.etcd.io/bbolt"
)

// loadBitmap reads the compressed bitmap stored at key in bucket, returning
// an empty bitmap if the key is absent. Sets are compressed bitmaps
// throughout the secondary indexes (spec.md §3).
func loadBitmap(b *bolt.Bucket, key []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	data := b.Get(key)
	if data == nil {
		return bm, nil
	}
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return bm, nil
}

func storeBitmap(b *bolt.Bucket, key []byte, bm *roaring.Bitmap) error {
	if bm.IsEmpty() {
		return b.Delete(key)
	}
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return err
	}
	return b.Put(key, buf.Bytes())
}

// addToBitmap loads the bitmap at key, adds uid, and writes it back.
func addToBitmap(b *bolt.Bucket, key []byte, uid uint32) error {
	bm, err := loadBitmap(b, key)
	if err != nil {
		return err
	}
	bm.Add(uid)
	return storeBitmap(b, key, bm)
}

// removeFromBitmap loads the bitmap at key, removes uid, and writes it back.
func removeFromBitmap(b *bolt.Bucket, key []byte, uid uint32) error {
	bm, err := loadBitmap(b, key)
	if err != nil {
		return err
	}
	bm.Remove(uid)
	return storeBitmap(b, key, bm)
}

// intersectAll ANDs together every non-nil bitmap in bms, returning nil
// (meaning "no filter") if bms is empty.
func intersectAll(bms ...*roaring.Bitmap) *roaring.Bitmap {
	var result *roaring.Bitmap
	for _, bm := range bms {
		if bm == nil {
			continue
		}
		if result == nil {
			result = bm.Clone()
			continue
		}
		result.And(bm)
	}
	return result
}

// unionKeys ORs the bitmaps stored at each of the given keys in bucket.
func unionKeys(b *bolt.Bucket, keys [][]byte) (*roaring.Bitmap, error) {
	result := roaring.New()
	for _, key := range keys {
		bm, err := loadBitmap(b, key)
		if err != nil {
			return nil, err
		}
		result.Or(bm)
	}
	return result, nil
}

// scanTimeRange walks a timeUIDKey-ordered bucket between after and before
// (either may be nil) and collects every uid found into a bitmap. Returns
// nil if both bounds are nil, meaning "no filter on this dimension".
func scanTimeRange(b *bolt.Bucket, after, before *time.Time) *roaring.Bitmap {
	if after == nil && before == nil {
		return nil
	}
	result := roaring.New()
	c := b.Cursor()

	var start []byte
	if after != nil {
		start = timeOnlyKey(*after)
	}

	var k []byte
	if start != nil {
		k, _ = c.Seek(start)
	} else {
		k, _ = c.First()
	}
	for ; k != nil; k, _ = c.Next() {
		if before != nil && bytes.Compare(k[:8], timeOnlyKey(*before)) > 0 {
			break
		}
		result.Add(uidFromTimeUIDKey(k))
	}
	return result
}
