package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMustRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(FillsTotal.WithLabelValues("mint"))
	FillsTotal.WithLabelValues("mint").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FillsTotal.WithLabelValues("mint")))
}
