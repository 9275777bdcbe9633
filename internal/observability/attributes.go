// Package observability provides metrics and tracing for deploy runs.
package observability

import (
	"paneldeploy/internal/apperrors"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrStep       = "step"
	attrSuccess    = "success"
	attrErrorClass = "error_class"
)

func stepAttr(step string) attribute.KeyValue {
	return attribute.String(attrStep, step)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func errorClassAttr(err error) attribute.KeyValue {
	// Class keeps cardinality bounded; raw messages never become labels.
	return attribute.String(attrErrorClass, apperrors.Class(err))
}
