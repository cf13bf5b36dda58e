package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_RegistersWithoutPanicking(t *testing.T) {
	m := NewMetrics()
	assert.NotNil(t, m)
}

func TestMetrics_RecordEjectOp_ExposedOnHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordEjectOp("native", true, 150*time.Millisecond)
	m.RecordEjectOp("diskutil", false, 10*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "eject_disks_eject_operations_total")
}

func TestMetrics_RecordEnumeration(t *testing.T) {
	m := NewMetrics()
	m.RecordEnumeration(3, 5*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "eject_disks_ejectable_volume_count 3")
}
