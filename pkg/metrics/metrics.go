// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for secure store
// operations: operation counts and latencies, classified error kinds, key
// lifecycle events and throttled authentication prompts.
package metrics

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-securestore/pkg/storeerror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all secure store metrics
	Namespace = "securestore"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelKind      = "kind"
	LabelPolicy    = "policy"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// KindUnclassified labels errors that carry no storeerror kind.
	KindUnclassified = "unclassified"

	// Operation names
	OpEnsureKeys      = "ensure_keys"
	OpRetrieveKeys    = "retrieve_keys"
	OpDeleteKeys      = "delete_keys"
	OpPurgeLegacy     = "purge_legacy"
	OpEncrypt         = "encrypt"
	OpDecrypt         = "decrypt"
	OpSign            = "sign"
	OpExportKey       = "export_public_key"
	OpThumbprint      = "thumbprint"
	OpItemExists      = "item_exists"
	OpReadItem        = "read_item"
	OpSaveItem        = "save_item"
	OpDeleteItem      = "delete_item"
	OpDeleteStore     = "delete_store"
	OpSignJWT         = "sign_jwt"
	OpVerifySignature = "verify_signature"
)

var (
	// OperationsTotal counts operations by name and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of secure store operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks operation latency in seconds. Operations
	// that prompt the user can take many seconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of secure store operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal counts failed operations by classified kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and classified kind",
		},
		[]string{LabelOperation, LabelKind},
	)

	// KeysCreatedTotal counts key pairs generated, by effective policy.
	KeysCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "keys_created_total",
			Help:      "Total number of key pairs generated by access policy",
		},
		[]string{LabelPolicy},
	)

	// KeysDeletedTotal counts key store entries removed.
	KeysDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "keys_deleted_total",
			Help:      "Total number of key store entries deleted",
		},
	)

	// PromptsThrottledTotal counts authentication prompts refused by the
	// rate limiter.
	PromptsThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "prompts_throttled_total",
			Help:      "Total number of authentication prompts refused by the rate limiter",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// Enable turns recording on.
func Enable() { enabled.Store(true) }

// Disable turns recording off.
func Disable() { enabled.Store(false) }

// IsEnabled reports whether metrics are recorded.
func IsEnabled() bool { return enabled.Load() }

// RecordOperation records one operation outcome and its duration.
func RecordOperation(operation, status string, seconds float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError records a failure of the given kind.
func RecordError(operation, kind string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, kind).Inc()
}

// RecordKeyCreated records a generated key pair.
func RecordKeyCreated(policy string) {
	if !enabled.Load() {
		return
	}
	KeysCreatedTotal.WithLabelValues(policy).Inc()
}

// RecordKeysDeleted records n removed key store entries.
func RecordKeysDeleted(n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	KeysDeletedTotal.Add(float64(n))
}

// RecordPromptThrottled records a refused authentication prompt.
func RecordPromptThrottled() {
	if !enabled.Load() {
		return
	}
	PromptsThrottledTotal.Inc()
}

// Observe records the outcome of an operation that started at start. A
// nil err counts as success; otherwise the error is also counted under its
// classified kind.
func Observe(operation string, start time.Time, err error) {
	seconds := time.Since(start).Seconds()
	if err == nil {
		RecordOperation(operation, StatusSuccess, seconds)
		return
	}
	RecordOperation(operation, StatusError, seconds)
	RecordError(operation, ErrorKind(err))
}

// ErrorKind returns the label for err.
func ErrorKind(err error) string {
	var e *storeerror.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return KindUnclassified
}

// WriteTextfile writes the default registry in the text exposition format,
// for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
