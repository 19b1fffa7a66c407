package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/auth/login"),
		attribute.String("user.password", "hunter2"),
		attribute.String("auth_token", "abc"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsMessageOnly(t *testing.T) {
	wrapped := errors.New("forbidden")
	assert.EqualError(t, SafeError(wrapped), "forbidden")
	assert.Nil(t, SafeError(nil))
}
