// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFileOperation(t *testing.T) {
	before := testutil.ToFloat64(fileOperationsTotal.WithLabelValues("create"))
	RecordFileOperation("create")
	assert.Equal(t, before+1, testutil.ToFloat64(fileOperationsTotal.WithLabelValues("create")))
}

func TestSetPreviewHandles(t *testing.T) {
	SetPreviewHandles(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(previewHandlesLive))
	SetPreviewHandles(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(previewHandlesLive))
}

func TestRecordKVOperation_Outcome(t *testing.T) {
	okBefore := testutil.ToFloat64(kvOperationsTotal.WithLabelValues("memory", "get", "success"))
	errBefore := testutil.ToFloat64(kvOperationsTotal.WithLabelValues("memory", "get", "error"))

	RecordKVOperation("memory", "get", time.Millisecond, nil)
	RecordKVOperation("memory", "get", time.Millisecond, errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(kvOperationsTotal.WithLabelValues("memory", "get", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(kvOperationsTotal.WithLabelValues("memory", "get", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordToolCall("create_file", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "aidev_tool_calls_total"))
}

func TestMiddleware_UnmatchedPath(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404"))

	h := Middleware(http.NotFoundHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
