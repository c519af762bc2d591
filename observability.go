package tiercache

import (
	"fmt"

	"go.uber.org/zap"
)

// faultTypeName renders an error's dynamic Go type for the errors_total
// metric's fault_type label, so breaker.Unavailable and sharedtier.ReadFault
// show up as distinct series rather than collapsing into one.
func faultTypeName(err error) string {
	return fmt.Sprintf("%T", err)
}

func zapFields(level, operation string, err error) []zap.Field {
	return []zap.Field{
		zap.String("level", level),
		zap.String("operation", operation),
		zap.Error(err),
	}
}
