package iceberg

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PartitionKey is the canonical form of a data file's partition tuple. Two
// files share a partition exactly when their keys are equal.
type PartitionKey string

// Unpartitioned is the key of every file in an unpartitioned table.
const Unpartitioned PartitionKey = ""

// partitionKeyOf canonicalizes a decoded Avro partition record: fields are
// sorted by name and nullable unions are unwrapped.
func partitionKeyOf(record interface{}) (PartitionKey, error) {
	if record == nil {
		return Unpartitioned, nil
	}
	fields, ok := record.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("partition is %T, expected a record", record)
	}
	if len(fields) == 0 {
		return Unpartitioned, nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatPartitionValue(unwrapUnion(fields[name])))
	}
	return PartitionKey(b.String()), nil
}

// unwrapUnion turns goavro's {"type": value} union encoding into value.
func unwrapUnion(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok && len(m) == 1 {
		for _, inner := range m {
			return inner
		}
	}
	return v
}

func formatPartitionValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return strconv.FormatInt(int64(x), 10)
	case *big.Rat:
		return x.RatString()
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
