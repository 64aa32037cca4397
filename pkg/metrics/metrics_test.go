// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-volumekey.
//
// go-volumekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUnlock(t *testing.T) {
	success := testutil.ToFloat64(UnlockAttempts.WithLabelValues(StatusSuccess))
	failure := testutil.ToFloat64(UnlockAttempts.WithLabelValues(StatusError))
	pinFails := testutil.ToFloat64(UnlockFailures.WithLabelValues("pin_incorrect"))

	RecordUnlock("", 10*time.Millisecond)
	RecordUnlock("pin_incorrect", 20*time.Millisecond)

	assert.Equal(t, success+1, testutil.ToFloat64(UnlockAttempts.WithLabelValues(StatusSuccess)))
	assert.Equal(t, failure+1, testutil.ToFloat64(UnlockAttempts.WithLabelValues(StatusError)))
	assert.Equal(t, pinFails+1, testutil.ToFloat64(UnlockFailures.WithLabelValues("pin_incorrect")))
}

func TestRecordMetadataResolution(t *testing.T) {
	success := testutil.ToFloat64(MetadataResolutions.WithLabelValues(StatusSuccess))
	failure := testutil.ToFloat64(MetadataResolutions.WithLabelValues(StatusError))

	RecordMetadataResolution(nil)
	RecordMetadataResolution(errors.New("boom"))

	assert.Equal(t, success+1, testutil.ToFloat64(MetadataResolutions.WithLabelValues(StatusSuccess)))
	assert.Equal(t, failure+1, testutil.ToFloat64(MetadataResolutions.WithLabelValues(StatusError)))
}
