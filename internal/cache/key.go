package cache

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const keyDelimiter = ":"

// Key derives a cache key from a prefix and positional arguments
func Key(prefix string, args ...any) string {
	return DeriveKey(prefix, args, nil)
}

// DeriveKey builds a stable key from a prefix, positional and named
// arguments. Primitives render literally; other values are hashed from
// their canonical JSON form (map keys sorted). Named arguments are sorted
// by name so their order never changes the key.
func DeriveKey(prefix string, positional []any, named map[string]any) string {
	parts := make([]string, 0, 1+len(positional)+len(named))
	parts = append(parts, prefix)

	for _, arg := range positional {
		parts = append(parts, renderArg(arg))
	}

	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+"="+renderArg(named[name]))
	}

	return strings.Join(parts, keyDelimiter)
}

func renderArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return HashValue(v)
	}
}

// HashValue returns the hex MD5 digest of v's canonical JSON encoding
func HashValue(v any) string {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		// unencodable values still need a deterministic part
		data = []byte(err.Error())
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// HashText returns the hex MD5 digest of a string, for long prompt keys
func HashText(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
