package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMessagesTotalCounts(t *testing.T) {
	before := testutil.ToFloat64(MessagesTotal.WithLabelValues("sent", "whatsapp"))
	MessagesTotal.WithLabelValues("sent", "whatsapp").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesTotal.WithLabelValues("sent", "whatsapp")))
}
