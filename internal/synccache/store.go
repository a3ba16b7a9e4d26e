package synccache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/zjrosen/flowsync/internal/log"
)

// DefaultKey is the object key used when a bucket URL does not name one.
const DefaultKey = "flowsync-cache.json"

// ErrCorrupt is logged when the persisted cache cannot be decoded.
var ErrCorrupt = errors.New("sync cache corrupted")

// Store persists Entries as a single JSON object in a blob bucket.
// A plain filesystem path is stored through a file:// bucket on its directory.
type Store struct {
	bucket *blob.Bucket
	key    string

	// lastRaw and lastEntries remember what Load read, so saving an
	// unmodified cache rewrites the exact same bytes.
	lastRaw     []byte
	lastEntries Entries
}

// Open resolves location into a Store. Accepted forms:
//
//	.flowsync/cache.json           local file
//	file:///var/lib/flowsync       bucket URL, key DefaultKey
//	s3://bucket?region=eu-west-1&key=prod/cache.json
func Open(ctx context.Context, location string) (*Store, error) {
	if location == "" {
		return nil, fmt.Errorf("cache location is empty")
	}

	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, fmt.Errorf("resolving cache path %s: %w", location, err)
		}
		bucket, err := fileblob.OpenBucket(filepath.Dir(abs), &fileblob.Options{
			CreateDir: true,
			NoTempDir: true,
			Metadata:  fileblob.MetadataDontWrite,
		})
		if err != nil {
			return nil, fmt.Errorf("opening cache directory: %w", err)
		}
		return NewStore(bucket, filepath.Base(abs)), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing cache location: %w", err)
	}
	q := u.Query()
	key := q.Get("key")
	if key == "" {
		key = DefaultKey
	}
	q.Del("key")
	u.RawQuery = q.Encode()

	bucket, err := blob.OpenBucket(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("opening cache bucket: %w", err)
	}
	return NewStore(bucket, key), nil
}

// NewStore wraps an already opened bucket. The Store takes ownership of it.
func NewStore(bucket *blob.Bucket, key string) *Store {
	return &Store{bucket: bucket, key: key}
}

// Key returns the object key the cache is stored under.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted entries. A missing object yields an empty
// cache; unreadable or malformed content is logged and also yields an
// empty cache.
func (s *Store) Load(ctx context.Context) Entries {
	s.lastRaw, s.lastEntries = nil, nil

	data, err := s.bucket.ReadAll(ctx, s.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound || errors.Is(err, os.ErrNotExist) {
			log.Debug(log.CatCache, "no sync cache found, starting fresh", "key", s.key)
			return Entries{}
		}
		log.ErrorErr(log.CatCache, "reading sync cache failed, starting fresh", err, "key", s.key)
		return Entries{}
	}

	entries, err := decode(data)
	if err != nil {
		log.Warn(log.CatCache, "sync cache corrupted, starting fresh", "key", s.key, "error", err.Error())
		return Entries{}
	}

	s.lastRaw = data
	s.lastEntries = entries.Clone()
	log.Debug(log.CatCache, "sync cache loaded", "key", s.key, "entries", len(entries))
	return entries
}

// Save overwrites the persisted cache with entries. Saving exactly what
// Load returned rewrites the original bytes.
func (s *Store) Save(ctx context.Context, entries Entries) error {
	data := s.lastRaw
	if data == nil || !maps.Equal(entries, s.lastEntries) {
		var err error
		data, err = encode(entries)
		if err != nil {
			return fmt.Errorf("encoding sync cache: %w", err)
		}
	}

	if err := s.bucket.WriteAll(ctx, s.key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("writing sync cache: %w", err)
	}

	s.lastRaw = data
	s.lastEntries = entries.Clone()
	log.Debug(log.CatCache, "sync cache saved", "key", s.key, "entries", len(entries))
	return nil
}

// Close releases the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func decode(data []byte) (Entries, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Entries{}, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	entries := make(Entries, len(raw))
	for k, v := range raw {
		entries[k] = Fingerprint(v)
	}
	return entries, nil
}

// encode writes keys in sorted order (encoding/json sorts map keys).
func encode(entries Entries) ([]byte, error) {
	if entries == nil {
		entries = Entries{}
	}
	return json.Marshal(entries)
}
