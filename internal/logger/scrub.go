package logger

import "go.uber.org/zap"

// Fields in this package never carry raw record values. Anything that could
// contain protected health information is logged as a length or a count so
// that log aggregation stays outside the PHI trust boundary.

// ValueLen records the length of a potentially sensitive string without the
// string itself.
func ValueLen(key, value string) zap.Field {
	return zap.Int(key+"_length", len(value))
}

// ValueCount records how many items a sensitive collection holds.
func ValueCount(key string, n int) zap.Field {
	return zap.Int(key+"_count", n)
}

// Present records only whether a sensitive value was supplied.
func Present(key, value string) zap.Field {
	return zap.Bool(key+"_present", value != "")
}
